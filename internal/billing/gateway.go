package billing

import (
	"context"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
)

// PayoutGateway refunds money back through the payment provider.
type PayoutGateway interface {
	RefundPayment(ctx context.Context, paymentRef string, amount float64) (string, error)
}

// RazorpayGateway issues refunds against captured Razorpay payments.
type RazorpayGateway struct {
	client *razorpay.Client
}

func NewRazorpayGateway(keyID, keySecret string) *RazorpayGateway {
	return &RazorpayGateway{client: razorpay.NewClient(keyID, keySecret)}
}

// RefundPayment refunds amount (major currency units) against the given
// payment. Razorpay amounts are in the smallest currency unit.
func (g *RazorpayGateway) RefundPayment(ctx context.Context, paymentRef string, amount float64) (string, error) {
	body, err := g.client.Payment.Refund(paymentRef, int(amount*100), map[string]interface{}{
		"speed": "normal",
	}, nil)
	if err != nil {
		return "", fmt.Errorf("razorpay refund: %w", err)
	}
	ref, _ := body["id"].(string)
	return ref, nil
}

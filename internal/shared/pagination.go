package shared

// ListFilters represents standard list filters shared by repositories.
type ListFilters struct {
	Limit  int
	Offset int
	Search string

	BranchID *int64
	Status   string
}

// Clamp normalizes limit/offset to sane bounds.
func (f *ListFilters) Clamp() {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

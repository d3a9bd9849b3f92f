package entities

// RecordFilter narrows catalog listings. Empty fields are ignored.
type RecordFilter struct {
	ISBN     string
	Title    string // substring
	Author   string // substring
	Category string // exact name
}

// BorrowerFilter narrows borrower listings. Empty fields are ignored.
type BorrowerFilter struct {
	ID    uint
	Name  string // substring
	Email string // substring
}

// LendingState selects open or returned lendings in listings.
type LendingState string

const (
	LendingStateAny      LendingState = ""
	LendingStateOpen     LendingState = "open"
	LendingStateReturned LendingState = "returned"
)

func (s LendingState) Valid() bool {
	return s == LendingStateAny || s == LendingStateOpen || s == LendingStateReturned
}

// LendingFilter narrows lending listings. Zero fields are ignored.
type LendingFilter struct {
	BorrowerID uint
	CopyID     uint
	State      LendingState
}

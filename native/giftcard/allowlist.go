package giftcard

// MaxAllowedRecipients bounds the allow-list of a single gift card.
const MaxAllowedRecipients = 10

// AllowList is a bounded ordered set of recipients. The zero value is the
// empty list, which permits any recipient.
type AllowList struct {
	entries [MaxAllowedRecipients][20]byte
	n       int
}

// NewAllowList builds an allow-list from the supplied recipients. Duplicates
// are collapsed keeping the first occurrence. More than MaxAllowedRecipients
// raw entries is rejected before deduplication.
func NewAllowList(recipients [][20]byte) (AllowList, error) {
	var list AllowList
	if len(recipients) > MaxAllowedRecipients {
		return list, ErrTooManyRecipients
	}
	for _, r := range recipients {
		if list.Contains(r) {
			continue
		}
		list.entries[list.n] = r
		list.n++
	}
	return list, nil
}

// Len returns the number of recipients.
func (l AllowList) Len() int { return l.n }

// IsEmpty reports whether the list imposes no restriction.
func (l AllowList) IsEmpty() bool { return l.n == 0 }

// Contains performs a linear membership check.
func (l AllowList) Contains(addr [20]byte) bool {
	for i := 0; i < l.n; i++ {
		if l.entries[i] == addr {
			return true
		}
	}
	return false
}

// Permits reports whether addr may receive a redemption.
func (l AllowList) Permits(addr [20]byte) bool {
	return l.IsEmpty() || l.Contains(addr)
}

// Recipients returns the entries in insertion order.
func (l AllowList) Recipients() [][20]byte {
	out := make([][20]byte, l.n)
	copy(out, l.entries[:l.n])
	return out
}

package classify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMerchantHashStableWithinSalt(t *testing.T) {
	a := NewAnonymizer("salt-1")

	first := a.MerchantHash("ICA Supermarket")
	second := a.MerchantHash("  ica supermarket ")
	assert.Equal(t, first, second, "case and whitespace must not change the pseudonym")
	assert.True(t, strings.HasPrefix(first, "m_"))
	assert.Len(t, first, 14)

	other := a.MerchantHash("Lidl")
	assert.NotEqual(t, first, other)

	differentSalt := NewAnonymizer("salt-2")
	assert.NotEqual(t, first, differentSalt.MerchantHash("ICA Supermarket"))

	assert.Equal(t, "", a.MerchantHash(""))
}

func TestRedactDescription(t *testing.T) {
	a := NewAnonymizer("salt")

	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "iban",
			in:   "Transfer to DE89370400440532013000 rent",
			want: "Transfer to [IBAN] rent",
		},
		{
			name: "card number",
			in:   "Payment 4111 1111 1111 1111 approved",
			want: "Payment [CARD] approved",
		},
		{
			name: "digit run",
			in:   "Invoice 982312 paid",
			want: "Invoice [NUM] paid",
		},
		{
			name: "short digits kept",
			in:   "Store 42 aisle 7",
			want: "Store 42 aisle 7",
		},
		{
			name: "plain text untouched",
			in:   "Coffee and cake",
			want: "Coffee and cake",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, a.RedactDescription(tc.in))
		})
	}
}

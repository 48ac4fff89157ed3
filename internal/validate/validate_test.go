package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epicdeals/instant-offer/internal/model"
)

func TestEmail(t *testing.T) {
	assert.True(t, Email("thandi@example.co.za"))
	assert.True(t, Email("sam.smith+offers@gmail.com"))
	assert.False(t, Email("not-an-email"))
	assert.False(t, Email("missing@tld"))
	assert.False(t, Email("@example.com"))
}

func TestPhone(t *testing.T) {
	assert.True(t, Phone("0821234567"))
	assert.True(t, Phone("+27821234567"))
	assert.True(t, Phone("082 123 4567"))
	assert.True(t, Phone("082-123-4567"))
	assert.False(t, Phone("08212345"))      // too short
	assert.False(t, Phone("1234567890"))    // wrong prefix
	assert.False(t, Phone("+44antwerpen1")) // not SA
}

func TestItemValue(t *testing.T) {
	v, err := ItemValue("7500", 1500, 25000)
	require.NoError(t, err)
	assert.InDelta(t, 7500.0, v, 0.001)

	v, err = ItemValue("R7500", 1500, 25000)
	require.NoError(t, err)
	assert.InDelta(t, 7500.0, v, 0.001)

	_, err = ItemValue("800", 1500, 25000)
	assert.Error(t, err)

	_, err = ItemValue("30000", 1500, 25000)
	assert.Error(t, err)

	_, err = ItemValue("a lot", 1500, 25000)
	assert.Error(t, err)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "iPhone 13, 128GB", Sanitize("iPhone 13, 128GB"))
	assert.Equal(t, "dropscript", Sanitize("drop<script>"))
	assert.Equal(t, "", Sanitize(""))
	assert.Equal(t, "me@example.com", Sanitize("  me@example.com  "))
}

func TestContact(t *testing.T) {
	valid := model.Contact{Name: "Thandi", Email: "thandi@example.co.za", Phone: "0821234567"}
	assert.NoError(t, Contact(valid))

	assert.Error(t, Contact(model.Contact{Email: "thandi@example.co.za"}))
	assert.Error(t, Contact(model.Contact{Name: "Thandi", Email: "bad"}))
	assert.Error(t, Contact(model.Contact{Name: "Thandi", Email: "thandi@example.co.za", Phone: "12"}))

	// Phone is optional.
	assert.NoError(t, Contact(model.Contact{Name: "Thandi", Email: "thandi@example.co.za"}))
}

func TestProduct(t *testing.T) {
	ok := model.ProductRecord{Category: "smartphone", Brand: "Apple", Model: "iPhone 13"}
	assert.NoError(t, Product(ok))

	err := Product(model.ProductRecord{Category: "smartphone", Brand: "Apple"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model")
}

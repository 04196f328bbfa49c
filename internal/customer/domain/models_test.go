package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "ACME GmbH", DisplayName(" ACME GmbH ", "Max", "Muster"))
	assert.Equal(t, "Max Muster", DisplayName("", "Max", "Muster"))
	assert.Equal(t, "Muster", DisplayName("", "", "Muster"))
	assert.Equal(t, "", DisplayName("", "", ""))
}

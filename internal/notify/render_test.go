package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderSubstitutesVariables(t *testing.T) {
	body := "Order {orderNumber} shipped. Tracking: {trackingNumber}. Arrives in {estimatedDays} days."
	got := Render(body, map[string]string{
		"orderNumber":    "1001",
		"trackingNumber": "TRK9",
		"estimatedDays":  "2-3",
	})

	assert.Contains(t, got, "1001")
	assert.Contains(t, got, "TRK9")
	assert.Contains(t, got, "2-3")
	assert.NotContains(t, got, "{")
	assert.NotContains(t, got, "}")
}

func TestRenderUnresolvedVariablesBecomeEmpty(t *testing.T) {
	got := Render("Hello {name}, your code is {code}.", map[string]string{"name": "Amira"})
	assert.Equal(t, "Hello Amira, your code is .", got)
}

func TestRenderNilVariables(t *testing.T) {
	assert.Equal(t, "Hi ", Render("Hi {name}", nil))
}

func TestRenderNoPlaceholders(t *testing.T) {
	assert.Equal(t, "static text", Render("static text", map[string]string{"x": "y"}))
}

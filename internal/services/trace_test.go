package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTraceFixedFields(t *testing.T) {
	trace := map[string]interface{}{
		"nome_completo": "Maria Silva",
		"whatsapp":      "55 (11) 98765-4321",
		"email":         "maria@example.com",
		"utm_source":    "google",
	}

	assert.Equal(t, "Maria Silva", TraceName(trace))
	assert.Equal(t, "55 (11) 98765-4321", TracePhone(trace))
	assert.Equal(t, "maria@example.com", TraceEmail(trace))

	// Missing fields come back empty, never panic
	empty := map[string]interface{}{}
	assert.Equal(t, "", TraceName(empty))
	assert.Equal(t, "", TracePhone(empty))
	assert.Equal(t, "", TraceEmail(empty))

	// English field names are honored by the same hints
	assert.Equal(t, "John", TraceName(map[string]interface{}{"full_name": "John"}))
	assert.Equal(t, "123", TracePhone(map[string]interface{}{"phone": 123}))
}

func TestIsTrackingKey(t *testing.T) {
	assert.True(t, IsTrackingKey("utm_source"))
	assert.True(t, IsTrackingKey("UTM_Campaign"))
	assert.True(t, IsTrackingKey("gclid"))
	assert.True(t, IsTrackingKey("fbclid"))
	assert.False(t, IsTrackingKey("nome"))
	assert.False(t, IsTrackingKey("utm"))
}

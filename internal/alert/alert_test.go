package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventStringSortsContext(t *testing.T) {
	e := New(SeverityWarning, "position quantity mismatch",
		"symbol", "700", "broker_qty", "300", "local_qty", "400")
	assert.Equal(t,
		"[WARNING] position quantity mismatch broker_qty=300 local_qty=400 symbol=700",
		e.String())
}

func TestEventStringNoContext(t *testing.T) {
	e := New(SeverityCritical, "trading halted")
	assert.Equal(t, "[CRITICAL] trading halted", e.String())
}

func TestMultiFansOut(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	Multi{a, b}.Emit(New(SeverityInfo, "position closed", "symbol", "700"))

	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
	assert.Equal(t, "700", b.Events()[0].Context["symbol"])
}

func TestRecorderBySubject(t *testing.T) {
	r := &Recorder{}
	r.Emit(New(SeverityInfo, "position closed"))
	r.Emit(New(SeverityWarning, "phantom position"))
	r.Emit(New(SeverityWarning, "phantom position"))

	assert.Len(t, r.BySubject("phantom position"), 2)
	assert.Empty(t, r.BySubject("missing"))
}

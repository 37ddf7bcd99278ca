package general

import (
	"context"
	"strings"
	"testing"

	"krishmitra-advisor/internal/modules"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModule_Advise(t *testing.T) {
	m := New()

	out, err := m.Advise(context.Background(), modules.Input{Text: "how do I grow cotton"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.Advice, "For cotton: "))
	assert.Equal(t, 0.5, out.Confidence)

	out, err = m.Advise(context.Background(), modules.Input{Text: "hello"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.Advice, "Follow recommended practices"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Advise(ctx, modules.Input{Text: "hello"})
	assert.Equal(t, modules.FailureTimeout, modules.KindOf(err))
}

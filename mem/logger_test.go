package mem

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/joshuapare/allockit/alloc"
)

func TestLogger_DefaultAndRestore(t *testing.T) {
	prev := Logger()
	t.Cleanup(func() { SetLogger(prev) })

	require.NotNil(t, Logger())

	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	register(t, New(), alloc.LinearConstructor(64))
	assert.Positive(t, logs.Len(), "managers created after SetLogger use it")

	SetLogger(nil)
	require.NotNil(t, Logger())
}

func TestLogger_ConcurrentSet(t *testing.T) {
	prev := Logger()
	t.Cleanup(func() { SetLogger(prev) })

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			SetLogger(zap.NewNop().Named(string(rune('a' + i))))
		}()
		go func() {
			defer wg.Done()
			Logger().Debug("concurrent read")
			_ = New()
		}()
	}
	wg.Wait()
	assert.NotNil(t, Logger())
}

package logger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTestLogger(t *testing.T) {
	logger := NewTestLogger()

	assert.NotNil(t, logger)
	assert.Len(t, logger.Logs(), 0)
	assert.Nil(t, logger.metadata)
}

func TestTestLoggerMethods(t *testing.T) {
	logger := NewTestLogger()

	logger.Trace("Trace message", 1)
	logger.Debug("Debug message", 2)
	logger.Info("Info message", 3)
	logger.Warn("Warn message", 4)
	logger.Error("Error message", 5)

	logs := logger.Logs()
	assert.Len(t, logs, 5)

	assert.Equal(t, "TRACE", logs[0].Severity)
	assert.Equal(t, "Trace message", logs[0].Message)
	assert.Equal(t, []interface{}{1}, logs[0].Arguments)

	assert.Equal(t, "WARNING", logs[3].Severity)
	assert.Equal(t, "ERROR", logs[4].Severity)
	assert.Equal(t, []interface{}{5}, logs[4].Arguments)
}

func TestTestLoggerWith(t *testing.T) {
	logger := NewTestLogger()

	loggerWithMetadata := logger.With(map[string]interface{}{"key1": "value1", "key2": 42})
	testLogger, ok := loggerWithMetadata.(*TestLogger)
	assert.True(t, ok)
	assert.Equal(t, "value1", testLogger.metadata["key1"])

	testLogger2 := WithKV(loggerWithMetadata, "key3", true).(*TestLogger)
	assert.Equal(t, "value1", testLogger2.metadata["key1"])
	assert.Equal(t, 42, testLogger2.metadata["key2"])
	assert.Equal(t, true, testLogger2.metadata["key3"])

	testLogger2.Info("from child")
	assert.True(t, logger.Contains("INFO", "from child"))
}

func TestTestLoggerWithContextAndPrefix(t *testing.T) {
	logger := NewTestLogger()
	assert.Equal(t, logger, logger.WithContext(context.Background()))
	assert.Equal(t, logger, logger.WithPrefix("TestPrefix"))
}

func TestTestLoggerConcurrent(t *testing.T) {
	logger := NewTestLogger()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			logger.WithPrefix("p").Error("failed %d", i)
		}(i)
	}
	wg.Wait()
	assert.Len(t, logger.Logs(), 20)
	assert.True(t, logger.Contains("ERROR", "failed 7"))
}

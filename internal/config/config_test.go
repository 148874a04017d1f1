package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"STORE_BACKEND", "CHECKOUT_STRATEGY", "CHECKOUT_TIMEOUT", "KAFKA_BROKERS", "RECONCILER_WORKERS"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, "auto", cfg.CheckoutStrategy)
	assert.Equal(t, 5*time.Second, cfg.CheckoutTimeout)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Mongo")
	t.Setenv("CHECKOUT_STRATEGY", "compensating")
	t.Setenv("CHECKOUT_TIMEOUT", "750ms")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("RECONCILER_WORKERS", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mongo", cfg.StoreBackend)
	assert.Equal(t, "compensating", cfg.CheckoutStrategy)
	assert.Equal(t, 750*time.Millisecond, cfg.CheckoutTimeout)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 2, cfg.ReconcilerWorkers)
}

func TestLoadRejectsUnknownValues(t *testing.T) {
	t.Setenv("STORE_BACKEND", "sqlite")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("CHECKOUT_STRATEGY", "optimistic")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("CHECKOUT_STRATEGY", "auto")
	t.Setenv("CHECKOUT_TIMEOUT", "soon")
	_, err = Load()
	assert.Error(t, err)
}

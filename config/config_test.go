package config

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func TestDefaults(t *testing.T) {
	c := qt.New(t)
	for _, key := range []string{"POS_SESSION_KEY", "POS_SCAN_GAP_MS", "POS_MIN_BARCODE_LENGTH", "POS_CLAMP_RESTORED_QUANTITY", "POS_STORE"} {
		c.Unsetenv(key)
	}

	cfg := LoadEnv()
	c.Assert(cfg.POS.SessionKey, qt.Equals, "pos_cart")
	c.Assert(cfg.POS.ScanGap, qt.Equals, 50*time.Millisecond)
	c.Assert(cfg.POS.MinBarcodeLength, qt.Equals, 3)
	c.Assert(cfg.POS.ClampRestoredQuantity, qt.IsTrue)
	c.Assert(cfg.POS.Store, qt.Equals, StorePostgres)
}

func TestMalformedValuesFallBack(t *testing.T) {
	c := qt.New(t)
	c.Setenv("POS_SCAN_GAP_MS", "fast")
	c.Setenv("POS_MIN_BARCODE_LENGTH", "x")
	c.Setenv("POS_CLAMP_RESTORED_QUANTITY", "maybe")

	cfg := LoadEnv()
	c.Assert(cfg.POS.ScanGap, qt.Equals, 50*time.Millisecond)
	c.Assert(cfg.POS.MinBarcodeLength, qt.Equals, 3)
	c.Assert(cfg.POS.ClampRestoredQuantity, qt.IsTrue)
}

func TestOverrides(t *testing.T) {
	c := qt.New(t)
	c.Setenv("POS_SESSION_KEY", "till_7")
	c.Setenv("POS_SCAN_GAP_MS", "30")
	c.Setenv("POS_MIN_BARCODE_LENGTH", "6")
	c.Setenv("POS_CLAMP_RESTORED_QUANTITY", "false")
	c.Setenv("POS_STORE", "Memory")
	c.Setenv("BACKEND_TIMEOUT_MS", "2500")
	c.Setenv("JWT_TTL_HOURS", "8")

	cfg := LoadEnv()
	c.Assert(cfg.POS.SessionKey, qt.Equals, "till_7")
	c.Assert(cfg.POS.ScanGap, qt.Equals, 30*time.Millisecond)
	c.Assert(cfg.POS.MinBarcodeLength, qt.Equals, 6)
	c.Assert(cfg.POS.ClampRestoredQuantity, qt.IsFalse)
	c.Assert(cfg.POS.Store, qt.Equals, StoreMemory)
	c.Assert(cfg.Backend.Timeout, qt.Equals, 2500*time.Millisecond)
	c.Assert(cfg.JWT.TTL, qt.Equals, 8*time.Hour)
}

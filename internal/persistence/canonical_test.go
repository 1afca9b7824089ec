package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chessanalytics/core/internal/models"
)

func TestCanonicalUserIDChessComLowercasesAndTrims(t *testing.T) {
	cases := []string{"Hikaru", "HIKARU", "HiKaRu", "  hikaru  "}
	for _, c := range cases {
		assert.Equal(t, "hikaru", CanonicalUserID(c, models.PlatformChessCom), "input %q", c)
	}
}

func TestCanonicalUserIDLichessPreservesCase(t *testing.T) {
	assert.Equal(t, "DrNykterstein", CanonicalUserID("DrNykterstein", models.PlatformLichess))
}

func TestCanonicalUserIDIsIdempotent(t *testing.T) {
	once := CanonicalUserID("HIKARU", models.PlatformChessCom)
	twice := CanonicalUserID(once, models.PlatformChessCom)
	assert.Equal(t, once, twice, "canonicalization must be idempotent")
}

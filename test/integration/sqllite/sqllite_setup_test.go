package sqllite

import (
	"path/filepath"
	"testing"

	"github.com/RealZimboGuy/flowtrigger/internal/config"
)

func runTestWithSetup(t *testing.T, testFunc func(t *testing.T)) {
	config.Set(config.DATABASE_TYPE, config.DATABASE_TYPE_SQLLITE)
	config.Set(config.DATABASE_SQLLITE_FILE_NAME, filepath.Join(t.TempDir(), "flowtrigger.db"))
	testFunc(t)
}

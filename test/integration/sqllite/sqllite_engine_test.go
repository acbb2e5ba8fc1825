package sqllite

import (
	"testing"

	"github.com/RealZimboGuy/flowtrigger/test/integration/common"
)

func TestSqlite_ScheduledRun(t *testing.T) {
	runTestWithSetup(t, common.ScheduledRun)
}

func TestSqlite_ConcurrentSchedulers(t *testing.T) {
	runTestWithSetup(t, common.ConcurrentSchedulers)
}

func TestSqlite_WebhookDelivery(t *testing.T) {
	runTestWithSetup(t, common.WebhookDelivery)
}

func TestSqlite_VersionPinning(t *testing.T) {
	runTestWithSetup(t, common.VersionPinning)
}

//go:build integration

package db

import (
	"context"
	"os"
	"testing"

	"github.com/zulandar/courier/internal/models"
)

// TestDeliveryLog_MySQL runs the delivery log against a real MySQL-compatible
// server. Set COURIER_TEST_MYSQL_DSN, e.g.
// "root:pw@tcp(127.0.0.1:3306)/courier_test?parseTime=true".
func TestDeliveryLog_MySQL(t *testing.T) {
	dsn := os.Getenv("COURIER_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("COURIER_TEST_MYSQL_DSN not set")
	}
	gdb, err := Open(DriverMySQL, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { gdb.Migrator().DropTable(&models.Delivery{}) })

	log, err := NewDeliveryLog(gdb)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	d := &models.Delivery{UserID: "u1", Subject: "Toplantı Hatırlatması", Recipients: 3, Status: models.DeliverySent}
	if err := log.Record(ctx, d); err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, err := log.Recent(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 || got[0].Subject != d.Subject {
		t.Errorf("Recent = %+v", got)
	}
}

package infra

import "testing"

func TestMigrationVersionsAreOrdered(t *testing.T) {
	versions, err := migrationVersions()
	if err != nil {
		t.Fatalf("versions: %v", err)
	}
	want := []string{"001_users.sql", "002_failed_login_events.sql"}
	if len(versions) != len(want) {
		t.Fatalf("expected %v, got %v", want, versions)
	}
	for i := range want {
		if versions[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, versions)
		}
	}
}

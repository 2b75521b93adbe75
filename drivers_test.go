package storekit_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/gobeaver/storekit"
	"github.com/gobeaver/storekit/storekittest"
)

func init() {
	storekit.RegisterDriver("stub", func(cfg *storekit.Config) (storekit.Accessor, error) {
		return storekittest.NewStubAccessor("stub"), nil
	})
	storekit.RegisterDriver("broken", func(cfg *storekit.Config) (storekit.Accessor, error) {
		return nil, errors.New("backend unreachable")
	})
}

func TestDrivers(t *testing.T) {
	names := storekit.Drivers()
	for _, want := range []string{"broken", "local", "memory", "stub", "zip"} {
		if !slices.Contains(names, want) {
			t.Errorf("Drivers() = %v, missing %q", names, want)
		}
	}
	if !slices.IsSorted(names) {
		t.Errorf("Drivers() = %v, want sorted", names)
	}
}

func TestCreateDriver(t *testing.T) {
	t.Run("registered", func(t *testing.T) {
		acc, err := storekit.CreateDriver(&storekit.Config{Driver: "stub"})
		if err != nil {
			t.Fatalf("CreateDriver() error = %v", err)
		}
		if acc.Info().Scheme() != "stub" {
			t.Errorf("scheme = %q, want stub", acc.Info().Scheme())
		}
	})

	t.Run("not registered", func(t *testing.T) {
		_, err := storekit.CreateDriver(&storekit.Config{Driver: "nope"})
		if !errors.Is(err, storekit.ErrConfigInvalid) {
			t.Errorf("CreateDriver() error = %v, want ConfigInvalid", err)
		}
	})

	t.Run("factory error", func(t *testing.T) {
		_, err := storekit.CreateDriver(&storekit.Config{Driver: "broken"})
		if err == nil || err.Error() != "backend unreachable" {
			t.Errorf("CreateDriver() error = %v", err)
		}
	})
}

func TestRegisterDriverReplaces(t *testing.T) {
	calls := 0
	storekit.RegisterDriver("replaced", func(cfg *storekit.Config) (storekit.Accessor, error) {
		calls++
		return storekittest.NewStubAccessor("first"), nil
	})
	storekit.RegisterDriver("replaced", func(cfg *storekit.Config) (storekit.Accessor, error) {
		return storekittest.NewStubAccessor("second"), nil
	})

	acc, err := storekit.CreateDriver(&storekit.Config{Driver: "replaced"})
	if err != nil {
		t.Fatalf("CreateDriver() error = %v", err)
	}
	if calls != 0 || acc.Info().Scheme() != "second" {
		t.Errorf("expected the second factory, got scheme %q", acc.Info().Scheme())
	}
}

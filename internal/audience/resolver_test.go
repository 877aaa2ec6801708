package audience

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"castbot/internal/storage"
	logx "castbot/pkg/logx"
)

type fakeUsers struct {
	byLevel map[string][]storage.User
	err     error
}

func (f *fakeUsers) Users(ctx context.Context) ([]storage.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []storage.User
	for _, lvl := range storage.Cohorts {
		out = append(out, f.byLevel[lvl]...)
	}
	return out, nil
}

func (f *fakeUsers) UsersByLevel(ctx context.Context, level string) ([]storage.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byLevel[level], nil
}

func u(ids ...int64) []storage.User {
	out := make([]storage.User, len(ids))
	for i, id := range ids {
		out[i] = storage.User{TelegramID: id}
	}
	return out
}

func TestResolve(t *testing.T) {
	t.Parallel()

	store := &fakeUsers{byLevel: map[string][]storage.User{
		"starters":  u(10, 11, 500), // 500 is also an admin
		"explorers": u(20),
	}}
	admins := []int64{500, 501}

	tests := []struct {
		name  string
		level string
		want  []int64
	}{
		{"cohort plus admins", "starters", []int64{10, 11, 500, 501}},
		{"cohort order before admin order", "explorers", []int64{20, 500, 501}},
		{"empty cohort still reaches admins", "achievers", []int64{500, 501}},
		{"admins only", storage.LevelAdmins, []int64{500, 501}},
		{"all users", storage.LevelAll, []int64{10, 11, 500, 20, 501}},
		{"unknown level falls back to admins", "vip", []int64{500, 501}},
	}

	r := New(store, admins, logx.Nop())
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Resolve(context.Background(), tc.level)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestResolveStoreError(t *testing.T) {
	t.Parallel()

	boom := errors.New("db gone")
	r := New(&fakeUsers{err: boom}, []int64{1}, logx.Nop())
	if _, err := r.Resolve(context.Background(), "starters"); !errors.Is(err, boom) {
		t.Fatalf("got %v want %v", err, boom)
	}

	// admins-only paths never touch the store
	got, err := r.Resolve(context.Background(), storage.LevelAdmins)
	if err != nil || !reflect.DeepEqual(got, []int64{1}) {
		t.Fatalf("admins path: got %v err %v", got, err)
	}
}

func TestApplyReplacesAdmins(t *testing.T) {
	t.Parallel()

	r := New(&fakeUsers{byLevel: map[string][]storage.User{}}, []int64{1, 2}, logx.Nop())
	r.Apply([]int64{9})
	got, err := r.Resolve(context.Background(), storage.LevelAdmins)
	if err != nil || !reflect.DeepEqual(got, []int64{9}) {
		t.Fatalf("got %v err %v", got, err)
	}
}

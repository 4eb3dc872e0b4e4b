package motion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"smartride/internal/types"
)

func makePath(n int) []types.GeoPoint {
	path := make([]types.GeoPoint, n)
	for i := range path {
		path[i] = types.GeoPoint{Lat: 13.34 + float64(i)*0.001, Lng: 74.74}
	}
	return path
}

func TestRun_ArrivesExactlyOnceAtLastPoint(t *testing.T) {
	path := makePath(25)
	r := Start(path, 50*time.Millisecond)
	defer r.Cancel()

	var got []Position
	for p := range r.Positions() {
		got = append(got, p)
	}

	require.Len(t, got, len(path))
	arrivals := 0
	for i, p := range got {
		require.Equal(t, i, p.Index)
		require.Equal(t, path[i], p.Point)
		if p.Arrived {
			arrivals++
		}
	}
	require.Equal(t, 1, arrivals)
	require.True(t, got[len(got)-1].Arrived)
	require.Equal(t, path[len(path)-1], got[len(got)-1].Point)
}

func TestRun_PaceFollowsDuration(t *testing.T) {
	path := makePath(5)
	began := time.Now()
	r := Start(path, 100*time.Millisecond)
	for range r.Positions() {
	}
	require.GreaterOrEqual(t, time.Since(began), 90*time.Millisecond)
}

func TestRun_CancelStopsEmission(t *testing.T) {
	r := Start(makePath(100), 2*time.Second)

	first := <-r.Positions()
	require.Equal(t, 0, first.Index)

	r.Cancel()
	r.Cancel()

	_, ok := <-r.Positions()
	require.False(t, ok, "no position may be delivered after Cancel returns")
	select {
	case <-r.Done():
	default:
		t.Fatal("emitter still running after Cancel")
	}
}

func TestRun_CancelWithoutConsumer(t *testing.T) {
	r := Start(makePath(3), 3*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	r.Cancel()
}

func TestRun_EmptyPath(t *testing.T) {
	r := Start(nil, time.Second)
	_, ok := <-r.Positions()
	require.False(t, ok)
	r.Cancel()
}

func TestRun_DoesNotAliasPath(t *testing.T) {
	path := makePath(2)
	want := path[1]
	r := Start(path, 20*time.Millisecond)
	path[1] = types.GeoPoint{}

	var last Position
	for p := range r.Positions() {
		last = p
	}
	require.Equal(t, want, last.Point)
}

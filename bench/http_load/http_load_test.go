package main

import (
	"math/rand"
	"testing"
)

func TestFolloweeIndex_NeverSelf(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for n := 2; n <= 5; n++ {
		seen := make(map[int]bool)
		for self := 0; self < n; self++ {
			for i := 0; i < 200; i++ {
				got := followeeIndex(self, n, r.Intn)
				if got == self || got < 0 || got >= n {
					t.Fatalf("n=%d self=%d: bad followee %d", n, self, got)
				}
				seen[got] = true
			}
		}
		if len(seen) != n {
			t.Fatalf("n=%d: expected every user to be picked, got %v", n, seen)
		}
	}
}

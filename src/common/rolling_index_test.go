package common

import (
	"testing"
)

func TestRollingIndex(t *testing.T) {
	size := 10
	testSize := 3 * size
	rollingIndex := NewRollingIndex[string]("test", size)
	items := []string{}
	for i := 0; i < testSize; i++ {
		item := "item" + string(rune('A'+i))
		rollingIndex.Set(item, i)
		items = append(items, item)
	}
	cached, lastIndex := rollingIndex.GetLastWindow()

	expectedLastIndex := testSize - 1
	if lastIndex != expectedLastIndex {
		t.Fatalf("lastIndex should be %d, not %d", expectedLastIndex, lastIndex)
	}

	start := (testSize / (2 * size)) * (size)
	count := testSize - start

	for i := 0; i < count; i++ {
		if cached[i] != items[start+i] {
			t.Fatalf("cached[%d] should be %s, not %s", i, items[start+i], cached[i])
		}
	}

	err := rollingIndex.Set("PassedIndex", expectedLastIndex-2*size)
	if !IsStore(err, TooLate) {
		t.Fatalf("Should return ErrTooLate")
	}

	err = rollingIndex.Set("SkippedIndex", expectedLastIndex+2)
	if !IsStore(err, SkippedIndex) {
		t.Fatalf("Should return ErrSkippedIndex")
	}

	_, err = rollingIndex.GetItem(expectedLastIndex - 2*size)
	if !IsStore(err, TooLate) {
		t.Fatalf("Should return ErrTooLate")
	}

	for i := expectedLastIndex - size; i <= expectedLastIndex; i++ {
		item, err := rollingIndex.GetItem(i)
		if err != nil {
			t.Fatal(err)
		}
		if item != items[i] {
			t.Fatalf("rollingIndex[%d] should be %s, not %s", i, items[i], item)
		}
	}
}

func TestRollingIndexGet(t *testing.T) {
	rollingIndex := NewRollingIndex[int]("test", 5)
	for i := 0; i < 4; i++ {
		if err := rollingIndex.Set(i*10, i); err != nil {
			t.Fatal(err)
		}
	}

	got, err := rollingIndex.Get(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != 20 || got[1] != 30 {
		t.Fatalf("Get(1) returned %v", got)
	}

	got, err = rollingIndex.Get(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("Get(10) should be empty, got %v", got)
	}
}

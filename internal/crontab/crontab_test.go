package crontab

import (
	"testing"
	"time"
)

func TestFindForward(t *testing.T) {
	ref := time.Date(2017, time.August, 20, 6, 0, 0, 0, time.Local)
	fire, found, err := Find("0 7 20 8 *", ref, 24*time.Hour, 24*time.Hour)
	if err != nil {
		t.Fatalf("Find returned error: %v", err)
	}
	if !found {
		t.Fatal("Find reported not found, want a match")
	}
	want := time.Date(2017, time.August, 20, 7, 0, 0, 0, time.Local)
	if !fire.Equal(want) {
		t.Errorf("Find = %v, want %v", fire, want)
	}
}

func TestFindBackward(t *testing.T) {
	ref := time.Date(2017, time.August, 20, 8, 0, 0, 0, time.Local)
	fire, found, err := Find("0 7 20 8 *", ref, 48*time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("Find returned error: %v", err)
	}
	if !found {
		t.Fatal("Find reported not found, want a match")
	}
	want := time.Date(2017, time.August, 20, 7, 0, 0, 0, time.Local)
	if !fire.Equal(want) {
		t.Errorf("Find = %v, want %v", fire, want)
	}
}

func TestFindNotFound(t *testing.T) {
	ref := time.Date(2017, time.August, 21, 0, 0, 0, 0, time.Local)
	_, found, err := Find("0 7 20 8 *", ref, time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("Find returned error: %v", err)
	}
	if found {
		t.Fatal("Find reported a match, want not found")
	}
}

func TestFindInvalidExpression(t *testing.T) {
	_, _, err := Find("not a cron expression", time.Now(), time.Hour, time.Hour)
	if err == nil {
		t.Fatal("Find with invalid expression succeeded, want error")
	}
}

package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCancellationFee(t *testing.T) {
	tests := []struct {
		name    string
		price   int64
		percent int
		want    int64
	}{
		{name: "ten percent", price: 90000, percent: 10, want: 9000},
		{name: "rounds half up", price: 12345, percent: 10, want: 1235},
		{name: "rounds down below half", price: 12344, percent: 10, want: 1234},
		{name: "zero percent", price: 90000, percent: 0, want: 0},
		{name: "full price", price: 90000, percent: 100, want: 90000},
		{name: "negative percent clamps to zero", price: 90000, percent: -5, want: 0},
		{name: "percent above 100 clamps to price", price: 90000, percent: 150, want: 90000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CancellationFee(tt.price, tt.percent))
		})
	}
}

func TestBooking_Cancellation(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	b := &Booking{Price: 50000}

	byPassenger := b.Cancellation(SidePassenger, 20, "sick", at)
	assert.Equal(t, BookingCancellation{Reason: "sick", Fee: 10000, Refund: 40000, At: at}, byPassenger)

	byDriver := b.Cancellation(SideDriver, 20, "", at)
	assert.Equal(t, int64(0), byDriver.Fee)
	assert.Equal(t, int64(50000), byDriver.Refund)
}

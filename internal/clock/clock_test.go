package clock

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeToMJDRoundTrip(t *testing.T) {
	in := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	mjd := TimeToMJD(in)
	out := MJDToTime(mjd)
	assert.WithinDuration(t, in, out, time.Second)
}

func TestTimeToMJDKnownEpoch(t *testing.T) {
	// MJD 0 is 1858-11-17T00:00:00 UTC.
	epoch := time.Date(1858, 11, 17, 0, 0, 0, 0, time.UTC)
	mjd := TimeToMJD(epoch)
	assert.InDelta(t, 0.0, mjd, 1e-6)
}

func TestGMSTStaysInRangeOneDayApart(t *testing.T) {
	mjd := TimeToMJD(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	g1 := GMSTRadians(mjd)
	// Sidereal day is slightly shorter than a solar day, so +1.0 solar day
	// does not map to exactly the same GMST - but it must still be in range.
	g2 := GMSTRadians(mjd + 1.0)
	assert.True(t, g1 >= 0 && g1 < 2*math.Pi)
	assert.True(t, g2 >= 0 && g2 < 2*math.Pi)
}

func TestMeridianRADegInRange(t *testing.T) {
	mjd := TimeToMJD(time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC))
	ra := MeridianRADeg(mjd, DSA110)
	assert.True(t, ra >= 0 && ra < 360)
}

func TestAngularSeparationWrapsAroundZero(t *testing.T) {
	assert.InDelta(t, 2.0, AngularSeparationDeg(1, 359), 1e-9)
	assert.InDelta(t, 0.0, AngularSeparationDeg(10, 10), 1e-9)
	assert.InDelta(t, 180.0, AngularSeparationDeg(0, 180), 1e-9)
}

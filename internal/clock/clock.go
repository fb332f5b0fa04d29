// Package clock provides MJD<->UTC<->LST conversion and meridian-RA
// estimation at a fixed telescope geodetic position. Julian day conversion
// is delegated to soniakeys/meeus rather than hand-rolled.
package clock

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/unit"
)

// mjdEpochJD is the Julian Date corresponding to MJD 0 (1858-11-17T00:00:00 UTC).
const mjdEpochJD = 2400000.5

// GeodeticPosition is a fixed telescope location on the WGS84 ellipsoid.
type GeodeticPosition struct {
	LongitudeDeg float64 // East-positive
	LatitudeDeg  float64
	ElevationM   float64
}

// DSA110 is the default telescope site (Owens Valley Radio Observatory,
// approximate DSA-110 array reference position).
var DSA110 = GeodeticPosition{
	LongitudeDeg: -118.2834,
	LatitudeDeg:  37.2339,
	ElevationM:   1222,
}

// TimeToMJD converts a UTC time.Time to Modified Julian Date.
func TimeToMJD(t time.Time) float64 {
	t = t.UTC()
	y, m, d := t.Date()
	dayFrac := float64(d) + (float64(t.Hour())*3600+float64(t.Minute())*60+float64(t.Second())+float64(t.Nanosecond())/1e9)/86400.0
	jd := julian.CalendarGregorianToJD(y, int(m), dayFrac)
	return jd - mjdEpochJD
}

// MJDToTime converts a Modified Julian Date to a UTC time.Time.
func MJDToTime(mjd float64) time.Time {
	jd := mjd + mjdEpochJD
	y, m, dayFrac := julian.JDToCalendar(jd)
	day := int(dayFrac)
	fracOfDay := dayFrac - float64(day)
	secs := fracOfDay * 86400.0
	base := time.Date(y, time.Month(m), day, 0, 0, 0, 0, time.UTC)
	return base.Add(time.Duration(secs * float64(time.Second)))
}

// GMSTRadians returns the Greenwich Mean Sidereal Time, in radians, for the
// given Modified Julian Date, using the IAU 1982 polynomial expansion (the
// closed-form approximation underlying meeus' sidereal-time chapter).
func GMSTRadians(mjd float64) float64 {
	jd := mjd + mjdEpochJD
	jd0 := math.Floor(jd-0.5) + 0.5
	t := (jd0 - 2451545.0) / 36525.0
	// Seconds of sidereal time at 0h UT, IAU 1982.
	gmstSec := 24110.54841 + 8640184.812866*t + 0.093104*t*t - 6.2e-6*t*t*t
	// Add the sidereal/solar rate contribution for the fractional day.
	fracDay := jd - jd0
	gmstSec += fracDay * 86400.0 * 1.00273790935
	gmstSec = math.Mod(gmstSec, 86400.0)
	if gmstSec < 0 {
		gmstSec += 86400.0
	}
	return (gmstSec / 86400.0) * 2 * math.Pi
}

// LSTRadians returns Local (Mean) Sidereal Time in radians at the given
// position and MJD.
func LSTRadians(mjd float64, pos GeodeticPosition) float64 {
	lst := GMSTRadians(mjd) + unit.AngleFromDeg(pos.LongitudeDeg).Rad()
	lst = math.Mod(lst, 2*math.Pi)
	if lst < 0 {
		lst += 2 * math.Pi
	}
	return lst
}

// MeridianRADeg returns the right ascension, in degrees [0,360), currently
// transiting the meridian at the given position and MJD — i.e. the hour
// angle is zero for a source at this RA. This is simply the Local Sidereal
// Time expressed as a right ascension.
func MeridianRADeg(mjd float64, pos GeodeticPosition) float64 {
	lst := LSTRadians(mjd, pos)
	deg := lst * 180 / math.Pi
	for deg < 0 {
		deg += 360
	}
	for deg >= 360 {
		deg -= 360
	}
	return deg
}

// AngularSeparationDeg returns the meridian-proximity separation (in
// degrees) between a source's RA and the RA currently transiting, taking
// the shorter way around the circle. Used by calibrator transit detection.
func AngularSeparationDeg(sourceRADeg, meridianRADeg float64) float64 {
	diff := math.Mod(sourceRADeg-meridianRADeg+540, 360) - 180
	return math.Abs(diff)
}

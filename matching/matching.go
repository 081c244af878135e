// Package matching implements the impedance-matching network's forward and
// inverse circuit models. It has no hardware dependency: every entry point
// is a pure function of measured impedance and the two VVC capacitances, so
// the package is testable without a HAL backend.
//
// Every constant and derived coefficient below is precomputed once, at
// construction, exactly as the original firmware's matching algorithm does
// it — runtime calls only ever touch Rm, Xm, VVC0, VVC1, and optionally
// Rpm/Xpm from the output sensor.
package matching

import "math"

const (
	nH = 1.0e-9
	pF = 1.0e-12
	uH = 1.0e-6

	// Freq is the fixed operating frequency, 13.56 MHz.
	Freq = 13.56e6
	pi   = 3.14159265358979323846
	// Omega is the angular frequency in rad/s.
	Omega = 2.0 * pi * Freq

	// Input stage (M -> A).
	Lp = 36.0 * nH
	Cp = 15.3 * pF

	// B circuit (VVC0 branch).
	LB0 = 157.0 * nH
	RB0 = 0.2
	CB0 = 1.9 * pF

	// C circuit (intermediate network).
	RC0 = 0.2
	LC0 = 1.03 * uH
	CC0 = 2.0 * pF
	CC1 = 1.5 * pF

	// D circuit (VVC1 branch).
	CD0 = 31.0 * pF

	// E circuit (output stage before plasma).
	RE0 = 0.2
	LE0 = 15.0 * nH

	// ZTarget is the matching target impedance, 50 ohms.
	ZTarget = 50.0
)

// ImpedancePoints holds the forward-model impedance at every labelled node
// of the matching network for one set of inputs.
type ImpedancePoints struct {
	RA, XA float64
	RB, XB float64
	RC, XC float64
	RD, XD float64
	RE, XE float64
	Rp, Xp float64
}

// MatchingGoals is the result of the inverse solve: up to two candidate
// (VVC0, VVC1) pairs that would bring the network to ZTarget, plus the
// intermediate values needed to log or debug the solve.
type MatchingGoals struct {
	VVC0Goal0, VVC1Goal0 float64
	Valid0               bool

	VVC0Goal1, VVC1Goal1 float64
	Valid1               bool

	RAGoal, XAGoal   float64
	XBGoal0, XBGoal1 float64
	XDGoal0, XDGoal1 float64

	RCCalculated, XCCalculated, XDCalculated float64
}

// OutputSensorInput carries the output sensor's reading for the high-VSWR
// ZC fallback path. UseOutputForRC selects it; Rpm/Xpm are ignored when
// UseOutputForRC is false.
type OutputSensorInput struct {
	Rpm, Xpm       float64
	UseOutputForRC bool
}

// Algorithm holds every coefficient derived from the fixed circuit
// constants. Build one with New and reuse it — the whole point of
// precomputation is to never repeat this work per tick.
type Algorithm struct {
	w, w2, w3, w4, w5, w6 float64

	// Z_A (M -> A).
	denomAConst, denomARm2, denomAXm, denomAXm2 float64
	xaConst, xaRm2, xaXm, xaXm2                 float64

	// Z_B (VVC0 branch). RB is a true constant.
	rbConst                                float64
	xbNumerConst, xbNumerVVC0, xbDenomFactor float64

	// Z_E (D -> E).
	eCD0, eCD02, e2CD0               float64
	eCD0w, e2CD0w, eCD02w, e2CD02w float64
	eCD02w2                          float64

	// Z_P (E -> plasma).
	re0, le0w float64

	// Z_D (C -> D).
	dConst, dRC2, dRC, dXC, dXC2 float64
	rdConst, rdRC                float64
	xdConst, xdRC2, xdRC, xdXC, xdXC2 float64

	// Matching goal constants.
	raGoal, xaGoal   float64
	raGoal2, xaGoal2 float64
	rb2              float64

	// Discriminant coefficients (XCGoal base; XBGoal uses 4x this).
	discConst, discRCCoef, discRC2Coef float64
}

// New precomputes all circuit-constant coefficients and returns a ready
// Algorithm.
func New() *Algorithm {
	a := &Algorithm{}

	a.w = Omega
	a.w2 = a.w * a.w
	a.w3 = a.w2 * a.w
	a.w4 = a.w2 * a.w2
	a.w5 = a.w4 * a.w
	a.w6 = a.w3 * a.w3

	lp2 := Lp * Lp
	cp2 := Cp * Cp
	cpLpW2 := Cp * Lp * a.w2
	cp2W2 := cp2 * a.w2
	cp2Lp2W4 := cp2 * lp2 * a.w4

	a.denomAConst = 1.0 - 2.0*cpLpW2 + cp2Lp2W4
	a.denomARm2 = cp2W2
	a.denomAXm = 2.0*Cp*a.w - 2.0*cp2*Lp*a.w3
	a.denomAXm2 = cp2W2

	a.xaConst = -Lp*a.w + Cp*lp2*a.w3
	a.xaRm2 = Cp * a.w
	a.xaXm = 1.0 - 2.0*Cp*Lp*a.w2
	a.xaXm2 = Cp * a.w

	lb02 := LB0 * LB0
	cb02 := CB0 * CB0
	rb02 := RB0 * RB0
	cb0Lb0W2 := CB0 * LB0 * a.w2
	cb02W2RB02LB02W2 := cb02 * a.w2 * (rb02 + lb02*a.w2)
	denomBConst := 1.0 - 2.0*cb0Lb0W2 + cb02W2RB02LB02W2

	a.rbConst = RB0 / denomBConst

	a.xbNumerConst = 1.0 + cb02W2RB02LB02W2 - 2.0*CB0*LB0*a.w2
	a.xbNumerVVC0 = -LB0*a.w2 + CB0*rb02*a.w2 + CB0*lb02*a.w4
	a.xbDenomFactor = a.w * denomBConst

	a.eCD0 = CD0
	a.eCD02 = CD0 * CD0
	a.e2CD0 = 2.0 * CD0
	a.eCD0w = CD0 * a.w
	a.e2CD0w = 2.0 * CD0 * a.w
	a.eCD02w = a.eCD02 * a.w
	a.e2CD02w = 2.0 * a.eCD02 * a.w
	a.eCD02w2 = a.eCD02 * a.w2

	a.re0 = RE0
	a.le0w = LE0 * a.w

	lc02 := LC0 * LC0
	cc02 := CC0 * CC0
	cc12 := CC1 * CC1
	rc02 := RC0 * RC0

	a.dConst = 1.0 - 2.0*CC0*LC0*a.w2 - 2.0*CC1*LC0*a.w2 +
		cc02*rc02*a.w2 + 2.0*CC0*CC1*rc02*a.w2 + cc12*rc02*a.w2 +
		cc02*lc02*a.w4 + 2.0*CC0*CC1*lc02*a.w4 + cc12*lc02*a.w4

	a.dRC2 = cc12*a.w2 - 2.0*CC0*cc12*LC0*a.w4 + cc02*cc12*rc02*a.w4 +
		cc02*cc12*lc02*a.w6

	a.dRC = -2.0 * cc12 * RC0 * a.w2

	a.dXC = 2.0*CC1*a.w - 4.0*CC0*CC1*LC0*a.w3 - 2.0*cc12*LC0*a.w3 +
		2.0*cc02*CC1*rc02*a.w3 + 2.0*CC0*cc12*rc02*a.w3 +
		2.0*cc02*CC1*lc02*a.w5 + 2.0*CC0*cc12*lc02*a.w5

	a.dXC2 = cc12*a.w2 - 2.0*CC0*cc12*LC0*a.w4 +
		cc02*cc12*rc02*a.w4 + cc02*cc12*lc02*a.w6

	a.rdConst = -RC0
	a.rdRC = 1.0 - 2.0*CC0*LC0*a.w2 + cc02*rc02*a.w2 + cc02*lc02*a.w4

	a.xdConst = -LC0*a.w + CC0*rc02*a.w + CC1*rc02*a.w +
		CC0*lc02*a.w3 + CC1*lc02*a.w3

	a.xdRC2 = CC1*a.w - 2.0*CC0*CC1*LC0*a.w3 + cc02*CC1*rc02*a.w3 +
		cc02*CC1*lc02*a.w5

	a.xdRC = -2.0 * CC1 * RC0 * a.w

	a.xdXC = 1.0 - 2.0*CC0*LC0*a.w2 - 2.0*CC1*LC0*a.w2 +
		cc02*rc02*a.w2 + 2.0*CC0*CC1*rc02*a.w2 +
		cc02*lc02*a.w4 + 2.0*CC0*CC1*lc02*a.w4

	a.xdXC2 = CC1*a.w - 2.0*CC0*CC1*LC0*a.w3 +
		cc02*CC1*rc02*a.w3 + cc02*CC1*lc02*a.w5

	z2 := ZTarget * ZTarget
	denomGoal := 1.0 + z2*cp2*a.w2 - 2.0*Cp*Lp*a.w2 + cp2*lp2*a.w4
	a.raGoal = ZTarget / denomGoal
	a.xaGoal = a.w * (z2*Cp - Lp + Cp*lp2*a.w2) / denomGoal
	a.raGoal2 = a.raGoal * a.raGoal
	a.xaGoal2 = a.xaGoal * a.xaGoal

	a.rb2 = a.rbConst * a.rbConst

	raGoal3 := a.raGoal * a.raGoal2
	a.discConst = raGoal3*a.rbConst - a.raGoal2*a.rb2 + a.raGoal*a.rbConst*a.xaGoal2
	a.discRCCoef = raGoal3 - 3.0*a.raGoal2*a.rbConst + 2.0*a.raGoal*a.rb2 +
		a.raGoal*a.xaGoal2 - a.rbConst*a.xaGoal2
	a.discRC2Coef = -a.raGoal2 + 2.0*a.raGoal*a.rbConst - a.rb2

	return a
}

// RAGoal returns the precomputed 50 ohm target impedance at point A.
func (a *Algorithm) RAGoal() (RAGoal, XAGoal float64) {
	return a.raGoal, a.xaGoal
}

// CalculateZA maps the measured impedance (Rm, Xm) through Lp, Cp to point A.
func (a *Algorithm) CalculateZA(Rm, Xm float64) (RA, XA float64) {
	Rm2 := Rm * Rm
	Xm2 := Xm * Xm

	denom := a.denomAConst + a.denomARm2*Rm2 + a.denomAXm*Xm + a.denomAXm2*Xm2

	RA = Rm / denom
	XA = (a.xaConst + a.xaRm2*Rm2 + a.xaXm*Xm + a.xaXm2*Xm2) / denom
	return
}

// CalculateZB maps the VVC0 capacitance (in pF) to the VVC0-branch impedance
// at point B. RB is a true constant of the circuit.
func (a *Algorithm) CalculateZB(vvc0PF float64) (RB, XB float64) {
	vvc0 := vvc0PF * pF

	RB = a.rbConst
	numer := -(a.xbNumerConst + a.xbNumerVVC0*vvc0)
	XB = numer / (vvc0 * a.xbDenomFactor)
	return
}

// CalculateZC parallels ZA and ZB to produce the impedance at point C.
func (a *Algorithm) CalculateZC(RA, XA, RB, XB float64) (RC, XC float64) {
	RA2 := RA * RA
	RB2 := RB * RB
	XA2 := XA * XA
	XB2 := XB * XB

	denom := RA2 - 2.0*RA*RB + RB2 + XA2 - 2.0*XA*XB + XB2
	if math.Abs(denom) < 1e-12 {
		return RA, XA
	}

	RC = (-RA2*RB + RA*RB2 - RB*XA2 + RA*XB2) / denom
	XC = (RB2*XA - RA2*XB - XA2*XB + XA*XB2) / denom
	return
}

// CalculateZD maps point C to point D through the intermediate network.
func (a *Algorithm) CalculateZD(RC, XC float64) (RD, XD float64) {
	RC2 := RC * RC
	XC2 := XC * XC

	denom := a.dConst + a.dRC2*RC2 + a.dRC*RC + a.dXC*XC + a.dXC2*XC2
	if math.Abs(denom) < 1e-20 {
		return RC, XC
	}

	rdNumer := a.rdConst + a.rdRC*RC
	xdNumer := a.xdConst + a.xdRC2*RC2 + a.xdRC*RC + a.xdXC*XC + a.xdXC2*XC2

	RD = rdNumer / denom
	XD = xdNumer / denom
	return
}

// CalculateZE maps point D through the VVC1 branch to point E.
func (a *Algorithm) CalculateZE(RD, XD, vvc1PF float64) (RE, XE float64) {
	vvc1 := vvc1PF * pF
	vvc12 := vvc1 * vvc1
	RD2 := RD * RD
	XD2 := XD * XD

	denomE := a.eCD02 + a.e2CD0*vvc1 + vvc12 +
		a.eCD02w2*RD2*vvc12 +
		a.e2CD02w*vvc1*XD +
		a.e2CD0w*vvc12*XD +
		a.eCD02w2*vvc12*XD2

	if math.Abs(denomE) < 1e-30 {
		return RD, XD
	}

	RE = RD * vvc12 / denomE

	xeNumer := a.eCD0 + vvc1 +
		a.eCD0w*a.w*RD2*vvc12 +
		a.e2CD0w*vvc1*XD +
		vvc12*a.w*XD +
		a.eCD0w*a.w*vvc12*XD2

	XE = xeNumer / (a.w * denomE)
	return
}

// CalculateZP strips the fixed output-stage series elements from Z_E to
// recover the plasma impedance seen beyond point E.
func (a *Algorithm) CalculateZP(RE, XE float64) (Rp, Xp float64) {
	Rp = RE - a.re0
	Xp = XE - a.le0w
	return
}

// CalculateImpedances runs the full forward model: measured impedance and
// both VVC capacitances in, every labelled node's impedance out.
func (a *Algorithm) CalculateImpedances(Rm, Xm, vvc0PF, vvc1PF float64) ImpedancePoints {
	var pts ImpedancePoints
	pts.RA, pts.XA = a.CalculateZA(Rm, Xm)
	pts.RB, pts.XB = a.CalculateZB(vvc0PF)
	pts.RC, pts.XC = a.CalculateZC(pts.RA, pts.XA, pts.RB, pts.XB)
	pts.RD, pts.XD = a.CalculateZD(pts.RC, pts.XC)
	pts.RE, pts.XE = a.CalculateZE(pts.RD, pts.XD, vvc1PF)
	pts.Rp, pts.Xp = a.CalculateZP(pts.RE, pts.XE)
	return pts
}

// CalculateZCFromOutput walks the network backwards from the output
// sensor's reading (Rpm, Xpm) to recover (RC, XC), used when the forward
// model at point A is too noisy to trust (high VSWR).
func (a *Algorithm) CalculateZCFromOutput(Rpm, Xpm, vvc1PF float64) (RC, XC float64) {
	vvc1 := vvc1PF * pF

	wLE0 := a.w * LE0
	zeR := Rpm + RE0
	zeX := Xpm + wLE0

	xCD0 := -1.0 / (a.w * CD0)

	numR := -zeX * xCD0
	numX := zeR * xCD0
	denR := zeR
	denX := zeX + xCD0

	denMag2 := denR*denR + denX*denX
	if denMag2 < 1e-30 {
		return Rpm, Xpm
	}

	zeCD0R := (numR*denR + numX*denX) / denMag2
	zeCD0X := (numX*denR - numR*denX) / denMag2

	xVVC1 := -1.0 / (a.w * vvc1)
	zdR := zeCD0R
	zdX := zeCD0X + xVVC1

	xCC1 := -1.0 / (a.w * CC1)

	num2R := -zdX * xCC1
	num2X := zdR * xCC1
	den2R := zdR
	den2X := zdX + xCC1

	den2Mag2 := den2R*den2R + den2X*den2X
	if den2Mag2 < 1e-30 {
		return Rpm, Xpm
	}

	zdCC1R := (num2R*den2R + num2X*den2X) / den2Mag2
	zdCC1X := (num2X*den2R - num2R*den2X) / den2Mag2

	zlcR := RC0
	zlcX := a.w * LC0
	xCC0 := -1.0 / (a.w * CC0)

	num3R := -zlcX * xCC0
	num3X := zlcR * xCC0
	den3R := zlcR
	den3X := zlcX + xCC0

	den3Mag2 := den3R*den3R + den3X*den3X
	if den3Mag2 < 1e-30 {
		return Rpm, Xpm
	}

	zc0R := (num3R*den3R + num3X*den3X) / den3Mag2
	zc0X := (num3X*den3R - num3R*den3X) / den3Mag2

	RC = zdCC1R + zc0R
	XC = zdCC1X + zc0X
	return
}

// CalculateMatchingGoals runs the inverse solve: given the current measured
// impedance and VVC capacitances, find up to two candidate (VVC0, VVC1)
// pairs that would bring point A to the 50 ohm target.
//
// When out.UseOutputForRC is set, (RC, XC) are recomputed from the output
// sensor reading before the solve, per the high-VSWR fallback path.
func (a *Algorithm) CalculateMatchingGoals(Rm, Xm, vvc0PF, vvc1PF float64, out OutputSensorInput) MatchingGoals {
	var goals MatchingGoals
	goals.RAGoal = a.raGoal
	goals.XAGoal = a.xaGoal

	pts := a.CalculateImpedances(Rm, Xm, vvc0PF, vvc1PF)

	RC := pts.RC
	XC := pts.XC
	XD := pts.XD

	if out.UseOutputForRC && (out.Rpm != 0.0 || out.Xpm != 0.0) {
		RC, XC = a.CalculateZCFromOutput(out.Rpm, out.Xpm, vvc1PF)
		_, XD = a.CalculateZD(RC, XC)
	}

	XB := pts.XB
	RC2 := RC * RC

	goals.RCCalculated = RC
	goals.XCCalculated = XC
	goals.XDCalculated = XD

	// Both goals invalid when R_A* == RB or R_A* == RC: the forward
	// denominators below vanish and there is no well-defined solution.
	discriminant := 4.0 * (a.discConst + a.discRCCoef*RC + a.discRC2Coef*RC2)
	if discriminant < 0 {
		return goals
	}

	sqrtD := math.Sqrt(discriminant)
	denomXB := 2.0 * (a.raGoal - RC)
	xbValid := math.Abs(denomXB) >= 1e-12

	if xbValid {
		goals.XBGoal0 = (-2.0*RC*a.xaGoal - sqrtD) / denomXB
		goals.XBGoal1 = (-2.0*RC*a.xaGoal + sqrtD) / denomXB
	} else {
		// R_A* == RC: the forward XB map has no solution for either
		// branch, so both goals for this tick are invalid rather than
		// silently falling back to XBGoal==0.
		goals.Valid0 = false
		goals.Valid1 = false
	}

	vvc0 := vvc0PF * pF
	vvc1 := vvc1PF * pF

	denom0VVC0 := 1.0 + vvc0*a.w*XB - vvc0*a.w*goals.XBGoal0
	denom1VVC0 := 1.0 + vvc0*a.w*XB - vvc0*a.w*goals.XBGoal1

	if xbValid && math.Abs(denom0VVC0) > 1e-20 {
		goals.VVC0Goal0 = (vvc0 / denom0VVC0) / pF
		goals.Valid0 = goals.VVC0Goal0 > 0
	}
	if xbValid && math.Abs(denom1VVC0) > 1e-20 {
		goals.VVC0Goal1 = (vvc0 / denom1VVC0) / pF
		goals.Valid1 = goals.VVC0Goal1 > 0
	}

	denomXC := a.raGoal - a.rbConst
	xcValid := math.Abs(denomXC) > 1e-12
	var xcGoal0, xcGoal1 float64
	if xcValid {
		sqrtDXC := sqrtD / 2.0
		xcGoal0 = (-a.rbConst*a.xaGoal + sqrtDXC) / denomXC
		xcGoal1 = (-a.rbConst*a.xaGoal - sqrtDXC) / denomXC
	} else {
		// R_A* == RB: the forward XC map has no solution for either
		// branch. Deliberate deviation from the original, which left
		// XCGoal at its silent zero default here.
		goals.Valid0 = false
		goals.Valid1 = false
	}

	calcXDFromXC := func(xcIn float64) float64 {
		xc2In := xcIn * xcIn
		denom := a.dConst + a.dRC2*RC2 + a.dRC*RC + a.dXC*xcIn + a.dXC2*xc2In
		xdNumer := a.xdConst + a.xdRC2*RC2 + a.xdRC*RC + a.xdXC*xcIn + a.xdXC2*xc2In
		if math.Abs(denom) < 1e-20 {
			return xcIn
		}
		return xdNumer / denom
	}

	goals.XDGoal0 = calcXDFromXC(xcGoal0)
	goals.XDGoal1 = calcXDFromXC(xcGoal1)

	denom0VVC1 := 1.0 + vvc1*a.w*XD - vvc1*a.w*goals.XDGoal0
	denom1VVC1 := 1.0 + vvc1*a.w*XD - vvc1*a.w*goals.XDGoal1

	if math.Abs(denom0VVC1) > 1e-20 {
		goals.VVC1Goal0 = (vvc1 / denom0VVC1) / pF
		if goals.VVC1Goal0 < 0 {
			goals.Valid0 = false
		}
	} else {
		goals.Valid0 = false
	}

	if math.Abs(denom1VVC1) > 1e-20 {
		goals.VVC1Goal1 = (vvc1 / denom1VVC1) / pF
		if goals.VVC1Goal1 < 0 {
			goals.Valid1 = false
		}
	} else {
		goals.Valid1 = false
	}

	return goals
}

// VSWR computes the voltage standing wave ratio for impedance (R, X)
// against a 50 ohm reference, capped at 999 when numerically unsafe.
func VSWR(R, X float64) float64 {
	return VSWRAt(R, X, ZTarget)
}

// VSWRAt computes VSWR against an arbitrary reference impedance Z0.
func VSWRAt(R, X, Z0 float64) float64 {
	denom := (R+Z0)*(R+Z0) + X*X
	numer := (R-Z0)*(R-Z0) + X*X
	if denom < 1e-12 {
		return 999.0
	}
	gamma := math.Sqrt(numer / denom)
	if gamma >= 1.0 {
		return 999.0
	}
	return (1.0 + gamma) / (1.0 - gamma)
}

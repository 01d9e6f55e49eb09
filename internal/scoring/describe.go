package scoring

// band maps one axis value onto five labels, from extreme positive to
// extreme negative.
func band(v int, labels [5]string) string {
	switch {
	case v >= 70:
		return labels[0]
	case v >= 30:
		return labels[1]
	case v > -30:
		return labels[2]
	case v > -70:
		return labels[3]
	default:
		return labels[4]
	}
}

var (
	lawLabels  = [5]string{"Lawful", "Neutral (Lawful leaning)", "Neutral", "Neutral (Chaotic leaning)", "Chaotic"}
	goodLabels = [5]string{"Good", "Neutral (Good leaning)", "Neutral", "Neutral (Evil leaning)", "Evil"}
)

// LawDescription labels the law/chaos axis.
func LawDescription(lawChaos int) string {
	return band(lawChaos, lawLabels)
}

// GoodDescription labels the good/evil axis.
func GoodDescription(goodEvil int) string {
	return band(goodEvil, goodLabels)
}

// AlignmentDescription combines both axes, e.g. "Lawful Neutral (Evil leaning)".
func AlignmentDescription(lawChaos, goodEvil int) string {
	return LawDescription(lawChaos) + " " + GoodDescription(goodEvil)
}

// TrustDescription labels the trust score.
func TrustDescription(trust int) string {
	switch {
	case trust >= 90:
		return "Unwavering Trust"
	case trust >= 70:
		return "Strong Trust"
	case trust >= 50:
		return "Moderate Trust"
	case trust >= 30:
		return "Cautious Trust"
	case trust >= 10:
		return "Suspicious"
	default:
		return "Distrustful"
	}
}

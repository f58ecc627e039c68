package ids

// Grade is a final course grade.
type Grade string

const (
	GradeA          Grade = "A"
	GradeB          Grade = "B"
	GradeC          Grade = "C"
	GradeD          Grade = "D"
	GradeF          Grade = "F"
	GradeWithdrawn  Grade = "W"
	GradeIncomplete Grade = "I"
	GradePass       Grade = "P"
)

// ParseGrade validates raw as a grade.
func ParseGrade(raw string) (Grade, error) {
	switch g := Grade(raw); g {
	case GradeA, GradeB, GradeC, GradeD, GradeF, GradeWithdrawn, GradeIncomplete, GradePass:
		return g, nil
	case "":
		return "", &ValidationError{Kind: KindGrade, Value: raw, Reason: "is required"}
	default:
		return "", &ValidationError{Kind: KindGrade, Value: raw, Reason: "must be one of A B C D F W I P"}
	}
}

// Passing reports whether the grade earns credit.
func (g Grade) Passing() bool {
	switch g {
	case GradeA, GradeB, GradeC, GradeD, GradePass:
		return true
	default:
		return false
	}
}

package registration

import "fmt"

type Category int

const (
	MIXED Category = iota
	GIRLS_ONLY
	BOYS_ONLY
)

func (c Category) String() string {
	switch c {
	case MIXED:
		return "mixed"
	case GIRLS_ONLY:
		return "girlsOnly"
	case BOYS_ONLY:
		return "boysOnly"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

func ParseCategory(s string) (Category, error) {
	switch s {
	case "mixed":
		return MIXED, nil
	case "girlsOnly":
		return GIRLS_ONLY, nil
	case "boysOnly":
		return BOYS_ONLY, nil
	default:
		return 0, NewInvalidRequestError(fmt.Sprintf("Unknown cohouse category %q", s))
	}
}

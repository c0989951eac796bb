package config

import "fmt"

func invalidValueError(name, value, want string) error {
	return fmt.Errorf("%s must be %s, got %q", name, want, value)
}

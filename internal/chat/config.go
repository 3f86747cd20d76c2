package chat

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Config is fixed for the lifetime of a Session. RoomID doubles as the
// transport topic and Password is passed to the transport untouched.
type Config struct {
	AppID    string `validate:"required"`
	RoomID   string `validate:"required,max=128"`
	UserName string `validate:"required,max=64"`
	Password string
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid session config: %w", err)
	}
	return nil
}

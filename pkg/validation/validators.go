package validation

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Regex patterns
var (
	// S3-compatible bucket names: 3-63 chars, lowercase, digits, dots and hyphens
	bucketRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)
)

// RegisterValidators registers custom validators to the validator instance
func RegisterValidators(v *validator.Validate) {
	_ = v.RegisterValidation("object_key", ObjectKey)
	_ = v.RegisterValidation("bucket_name", BucketName)
}

// New returns a validator with the custom rules registered
func New() *validator.Validate {
	v := validator.New()
	RegisterValidators(v)
	return v
}

// ObjectKey rejects keys that could escape the bucket or confuse the backend
func ObjectKey(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true // Optional, use required if needed
	}
	if len(val) > 1024 || strings.HasPrefix(val, "/") || strings.ContainsRune(val, 0) {
		return false
	}
	for _, part := range strings.Split(val, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

// BucketName validates S3-compatible bucket naming
func BucketName(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true
	}
	return bucketRegex.MatchString(val) && !strings.Contains(val, "..")
}

package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// KeySegmentPattern определяет допустимый формат одного сегмента ключа:
// латинские буквы, цифры, дефис и нижнее подчеркивание, 1-64 символа
var KeySegmentPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

const (
	// MaxKeyLen максимальная длина полного ключа записи
	MaxKeyLen = 256
	// MaxKeySegments максимальное количество dot-сегментов в ключе
	MaxKeySegments = 8
)

// ValidateRecordKey проверяет, что ключ записи соответствует соглашению
// "<namespace>.<...>": непустые dot-сегменты из безопасного алфавита
func ValidateRecordKey(key string) error {
	if key == "" {
		return fmt.Errorf("record key cannot be empty")
	}

	if len(key) > MaxKeyLen {
		return fmt.Errorf("record key must not exceed %d characters", MaxKeyLen)
	}

	segments := strings.Split(key, ".")
	if len(segments) < 2 {
		return fmt.Errorf("record key must contain at least two dot-separated segments")
	}
	if len(segments) > MaxKeySegments {
		return fmt.Errorf("record key must not exceed %d segments", MaxKeySegments)
	}

	for _, segment := range segments {
		if !KeySegmentPattern.MatchString(segment) {
			return fmt.Errorf("invalid key segment %q: only letters, numbers, '-' and '_' are allowed", segment)
		}
	}

	return nil
}

// ValidateScanPrefix проверяет префикс для prefix-scan запроса.
// Префикс мягче ключа: допускается завершающая точка.
func ValidateScanPrefix(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("scan prefix cannot be empty")
	}

	if len(prefix) > MaxKeyLen {
		return fmt.Errorf("scan prefix must not exceed %d characters", MaxKeyLen)
	}

	trimmed := strings.TrimSuffix(prefix, ".")
	for _, segment := range strings.Split(trimmed, ".") {
		if !KeySegmentPattern.MatchString(segment) {
			return fmt.Errorf("invalid prefix segment %q", segment)
		}
	}

	return nil
}

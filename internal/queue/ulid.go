package queue

import "github.com/jmylchreest/commercestack/internal/models"

func parseULID(s string) (models.ULID, error) {
	return models.ParseULID(s)
}

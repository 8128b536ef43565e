package reviews

import (
	"errors"

	"github.com/Clark-Hu/rate-the-washroom/internal/apperr"
	"github.com/Clark-Hu/rate-the-washroom/internal/repository"
	"github.com/Clark-Hu/rate-the-washroom/internal/store"
)

func classify(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("resource not found")
	}
	return store.Classify(err)
}

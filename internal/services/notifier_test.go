package services

import (
	"context"
	"errors"
	"testing"

	"github.com/smart-aqua/backend/internal/db/models"
	"github.com/stretchr/testify/assert"
)

func TestMultiNotifier(t *testing.T) {
	alert := &models.Alert{DeviceID: "tank-1", AlertType: models.AlertLowLevel}

	t.Run("Should deliver to every notifier and skip nils", func(t *testing.T) {
		first := &recordingNotifier{}
		second := &recordingNotifier{}
		multi := NewMultiNotifier(first, nil, second)

		assert.Equal(t, 2, multi.Len())
		assert.NoError(t, multi.Notify(context.Background(), alert))
		assert.Len(t, first.Alerts(), 1)
		assert.Len(t, second.Alerts(), 1)
	})

	t.Run("Should keep delivering after a failure and join errors", func(t *testing.T) {
		boom := errors.New("boom")
		after := &recordingNotifier{}
		multi := NewMultiNotifier(NotifierFunc(func(context.Context, *models.Alert) error { return boom }), after)

		err := multi.Notify(context.Background(), alert)

		assert.ErrorIs(t, err, boom)
		assert.Len(t, after.Alerts(), 1)
	})
}

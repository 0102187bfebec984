package repository

import (
	"encoding/json"

	"github.com/maritime-tutor/backend/internal/model"
)

func marshalBoundingBoxes(boxes []model.BoundingBox) ([]byte, error) {
	if len(boxes) == 0 {
		return nil, nil
	}
	return json.Marshal(boxes)
}

func unmarshalBoundingBoxes(raw []byte) ([]model.BoundingBox, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var boxes []model.BoundingBox
	if err := json.Unmarshal(raw, &boxes); err != nil {
		return nil, err
	}
	return boxes, nil
}

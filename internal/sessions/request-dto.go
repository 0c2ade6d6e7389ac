package sessions

// SetCapacityRequest sets the admission ceiling for a session
type SetCapacityRequest struct {
	MaxCapacity *int `json:"max_capacity" binding:"required,min=0,max=1000"`
}

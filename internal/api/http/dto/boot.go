package dto

type BootEventRequest struct {
	MacAddress string `json:"mac_address" binding:"required"`
	Event      string `json:"event" binding:"required"`
	IPAddress  string `json:"ip_address"`
}

type WriteResponse struct {
	Offset int64 `json:"offset"`
	Length int   `json:"length"`
}

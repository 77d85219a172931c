package server

import (
	"errors"
	"math"
	"time"

	"github.com/vanshika/reddrop/backend/internal/domain"
	"github.com/vanshika/reddrop/backend/internal/service"
)

type statusResponse struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
}

type donorRequest struct {
	DonorID        string   `json:"donorId"`
	Name           string   `json:"name"`
	BloodType      string   `json:"bloodType"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	Availability   string   `json:"availability"`
	LastDonationAt string   `json:"lastDonationAt"`
	TotalDonations int      `json:"totalDonations"`
}

type availabilityRequest struct {
	Available *bool `json:"available"`
}

type donorResponse struct {
	DonorID        string   `json:"donorId"`
	Name           string   `json:"name"`
	BloodType      string   `json:"bloodType"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
	Availability   string   `json:"availability"`
	LastDonationAt string   `json:"lastDonationAt,omitempty"`
	NextEligibleAt string   `json:"nextEligibleAt,omitempty"`
	TotalDonations int      `json:"totalDonations"`
	UpdatedAt      string   `json:"updatedAt,omitempty"`
}

type inventoryRequest struct {
	LineID    string `json:"lineId"`
	BloodType string `json:"bloodType"`
	Units     int    `json:"units"`
	ExpiresAt string `json:"expiresAt"`
}

type bloodBankRequest struct {
	BankID        string             `json:"bankId"`
	Name          string             `json:"name"`
	LicenseNumber string             `json:"licenseNumber"`
	Latitude      *float64           `json:"latitude"`
	Longitude     *float64           `json:"longitude"`
	Inventory     []inventoryRequest `json:"inventory"`
}

type bloodRequestPayload struct {
	RequestID    string   `json:"requestId"`
	RequesterID  string   `json:"requesterId"`
	BloodType    string   `json:"bloodType"`
	Units        int      `json:"units"`
	Urgency      string   `json:"urgency"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	HospitalName string   `json:"hospitalName"`
	ExpiresAt    string   `json:"expiresAt"`
}

type requestResponse struct {
	RequestID    string   `json:"requestId"`
	RequesterID  string   `json:"requesterId,omitempty"`
	BloodType    string   `json:"bloodType"`
	Units        int      `json:"units"`
	Urgency      string   `json:"urgency"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	HospitalName string   `json:"hospitalName,omitempty"`
	Status       string   `json:"status"`
	CreatedAt    string   `json:"createdAt"`
	UpdatedAt    string   `json:"updatedAt,omitempty"`
	ExpiresAt    string   `json:"expiresAt,omitempty"`
}

type requestListResponse struct {
	Items []requestResponse `json:"items"`
}

type donorMatch struct {
	DonorID        string  `json:"donorId"`
	Name           string  `json:"name,omitempty"`
	BloodType      string  `json:"bloodType"`
	DistanceKm     float64 `json:"distanceKm"`
	LastDonationAt string  `json:"lastDonationAt,omitempty"`
}

type inventoryMatch struct {
	LineID         string  `json:"lineId"`
	BankID         string  `json:"bankId"`
	BankName       string  `json:"bankName,omitempty"`
	BloodType      string  `json:"bloodType"`
	DistanceKm     float64 `json:"distanceKm"`
	UnitsAvailable int     `json:"unitsAvailable"`
	UnitsAllocated int     `json:"unitsAllocated"`
	ExpiresAt      string  `json:"expiresAt,omitempty"`
}

type exclusionResponse struct {
	CandidateID string `json:"candidateId"`
	Reason      string `json:"reason"`
	Detail      string `json:"detail"`
}

type matchResponse struct {
	Request   requestResponse     `json:"request"`
	RadiusKm  *float64            `json:"radiusKm"`
	Donors    []donorMatch        `json:"donors"`
	Inventory []inventoryMatch    `json:"inventory"`
	Excluded  []exclusionResponse `json:"excluded"`
	Contended int                 `json:"contended"`
}

type dispatchResponse struct {
	Matched []matchResponse `json:"matched"`
	Errors  []string        `json:"errors"`
}

type matchRecordResponse struct {
	CandidateID string  `json:"candidateId"`
	Kind        string  `json:"kind"`
	Rank        int     `json:"rank"`
	DistanceKm  float64 `json:"distanceKm"`
	Units       int     `json:"units"`
	MatchedAt   string  `json:"matchedAt,omitempty"`
	Response    string  `json:"response,omitempty"`
	RespondedAt string  `json:"respondedAt,omitempty"`
}

type donorResponsePayload struct {
	DonorID  string `json:"donorId"`
	Response string `json:"response"`
}

type donorSearchResponse struct {
	BloodType string              `json:"bloodType"`
	RadiusKm  *float64            `json:"radiusKm"`
	Donors    []donorMatch        `json:"donors"`
	Excluded  []exclusionResponse `json:"excluded"`
}

type inventorySearchResponse struct {
	BloodType string              `json:"bloodType"`
	RadiusKm  *float64            `json:"radiusKm"`
	Inventory []inventoryMatch    `json:"inventory"`
	Excluded  []exclusionResponse `json:"excluded"`
}

type compatibilityResponse struct {
	BloodType  string   `json:"bloodType"`
	Donors     []string `json:"donors"`
	Recipients []string `json:"recipients"`
}

func locationInput(lat, lng *float64) (*service.LocationInput, error) {
	switch {
	case lat == nil && lng == nil:
		return nil, nil
	case lat == nil || lng == nil:
		return nil, errors.New("latitude and longitude must be supplied together")
	default:
		return &service.LocationInput{Latitude: *lat, Longitude: *lng}, nil
	}
}

func parseTimeField(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmtError("invalid " + field)
	}
	return &ts, nil
}

func (req donorRequest) toServiceInput() (service.DonorInput, error) {
	loc, err := locationInput(req.Latitude, req.Longitude)
	if err != nil {
		return service.DonorInput{}, err
	}
	last, err := parseTimeField("lastDonationAt", req.LastDonationAt)
	if err != nil {
		return service.DonorInput{}, err
	}
	return service.DonorInput{
		ID:             req.DonorID,
		Name:           req.Name,
		BloodType:      req.BloodType,
		Location:       loc,
		Availability:   req.Availability,
		LastDonationAt: last,
		TotalDonations: req.TotalDonations,
	}, nil
}

func (req bloodBankRequest) toServiceInput() (service.BloodBankInput, error) {
	loc, err := locationInput(req.Latitude, req.Longitude)
	if err != nil {
		return service.BloodBankInput{}, err
	}
	inventory := make([]service.InventoryInput, 0, len(req.Inventory))
	for _, line := range req.Inventory {
		expires, err := parseTimeField("expiresAt", line.ExpiresAt)
		if err != nil {
			return service.BloodBankInput{}, err
		}
		inventory = append(inventory, service.InventoryInput{
			ID:        line.LineID,
			BloodType: line.BloodType,
			Units:     line.Units,
			ExpiresAt: expires,
		})
	}
	return service.BloodBankInput{
		ID:            req.BankID,
		Name:          req.Name,
		LicenseNumber: req.LicenseNumber,
		Location:      loc,
		Inventory:     inventory,
	}, nil
}

func (req bloodRequestPayload) toServiceInput() (service.RequestInput, error) {
	loc, err := locationInput(req.Latitude, req.Longitude)
	if err != nil {
		return service.RequestInput{}, err
	}
	expires, err := parseTimeField("expiresAt", req.ExpiresAt)
	if err != nil {
		return service.RequestInput{}, err
	}
	return service.RequestInput{
		ID:           req.RequestID,
		RequesterID:  req.RequesterID,
		BloodType:    req.BloodType,
		Units:        req.Units,
		Urgency:      req.Urgency,
		Location:     loc,
		HospitalName: req.HospitalName,
		ExpiresAt:    expires,
	}, nil
}

func coordinateFields(c *domain.Coordinate) (*float64, *float64) {
	if c == nil {
		return nil, nil
	}
	lat, lng := c.Latitude, c.Longitude
	return &lat, &lng
}

func toDonorResponse(d domain.Donor) donorResponse {
	lat, lng := coordinateFields(d.Location)
	return donorResponse{
		DonorID:        d.ID,
		Name:           d.Name,
		BloodType:      d.BloodType.String(),
		Latitude:       lat,
		Longitude:      lng,
		Availability:   string(d.Availability),
		LastDonationAt: formatTimePtr(d.LastDonationAt),
		NextEligibleAt: formatTimePtr(d.NextEligibleAt),
		TotalDonations: d.TotalDonations,
		UpdatedAt:      formatTime(d.UpdatedAt),
	}
}

func toRequestResponse(r domain.BloodRequest) requestResponse {
	lat, lng := coordinateFields(r.Location)
	return requestResponse{
		RequestID:    r.ID,
		RequesterID:  r.RequesterID,
		BloodType:    r.BloodType.String(),
		Units:        r.Units,
		Urgency:      r.Urgency.String(),
		Latitude:     lat,
		Longitude:    lng,
		HospitalName: r.HospitalName,
		Status:       string(r.Status),
		CreatedAt:    formatTime(r.CreatedAt),
		UpdatedAt:    formatTime(r.UpdatedAt),
		ExpiresAt:    formatTimePtr(r.ExpiresAt),
	}
}

func toMatchResponse(o service.MatchOutcome) matchResponse {
	resp := matchResponse{
		Request:   toRequestResponse(o.Request),
		RadiusKm:  radiusField(o.RadiusKm),
		Donors:    make([]donorMatch, 0, len(o.Donors)),
		Inventory: make([]inventoryMatch, 0, len(o.Inventory)),
		Excluded:  toExclusionResponses(o.Excluded),
		Contended: o.Contended,
	}
	for _, c := range o.Donors {
		resp.Donors = append(resp.Donors, toDonorMatch(c))
	}
	for i, c := range o.Inventory {
		resp.Inventory = append(resp.Inventory, toInventoryMatch(c, o.Allocated[i]))
	}
	return resp
}

func toDonorSearchResponse(res service.SearchResult) donorSearchResponse {
	resp := donorSearchResponse{
		BloodType: res.BloodType.String(),
		RadiusKm:  radiusField(res.RadiusKm),
		Donors:    make([]donorMatch, 0, len(res.Candidates)),
		Excluded:  toExclusionResponses(res.Excluded),
	}
	for _, c := range res.Candidates {
		resp.Donors = append(resp.Donors, toDonorMatch(c))
	}
	return resp
}

func toInventorySearchResponse(res service.SearchResult) inventorySearchResponse {
	resp := inventorySearchResponse{
		BloodType: res.BloodType.String(),
		RadiusKm:  radiusField(res.RadiusKm),
		Inventory: make([]inventoryMatch, 0, len(res.Candidates)),
		Excluded:  toExclusionResponses(res.Excluded),
	}
	for _, c := range res.Candidates {
		resp.Inventory = append(resp.Inventory, toInventoryMatch(c, 0))
	}
	return resp
}

// radiusField reports an unbounded radius as null; JSON has no infinity.
func radiusField(km float64) *float64 {
	if math.IsInf(km, 0) {
		return nil
	}
	return &km
}

func toDonorMatch(c domain.MatchCandidate) donorMatch {
	return donorMatch{
		DonorID:        c.Donor.ID,
		Name:           c.Donor.Name,
		BloodType:      c.BloodType.String(),
		DistanceKm:     roundKm(c.DistanceKm),
		LastDonationAt: formatTimePtr(c.Donor.LastDonationAt),
	}
}

func toInventoryMatch(c domain.MatchCandidate, allocated int) inventoryMatch {
	return inventoryMatch{
		LineID:         c.Inventory.ID,
		BankID:         c.Inventory.BankID,
		BankName:       c.Inventory.BankName,
		BloodType:      c.BloodType.String(),
		DistanceKm:     roundKm(c.DistanceKm),
		UnitsAvailable: c.Inventory.Units,
		UnitsAllocated: allocated,
		ExpiresAt:      formatTimePtr(c.Inventory.ExpiresAt),
	}
}

func toExclusionResponses(excluded []service.Exclusion) []exclusionResponse {
	out := make([]exclusionResponse, 0, len(excluded))
	for _, ex := range excluded {
		out = append(out, exclusionResponse{
			CandidateID: ex.CandidateID,
			Reason:      ex.Reason,
			Detail:      ex.Detail,
		})
	}
	return out
}

func toMatchRecordResponse(rec domain.MatchRecord) matchRecordResponse {
	return matchRecordResponse{
		CandidateID: rec.CandidateID,
		Kind:        string(rec.Kind),
		Rank:        rec.Rank,
		DistanceKm:  roundKm(rec.DistanceKm),
		Units:       rec.Units,
		MatchedAt:   formatTime(rec.MatchedAt),
		Response:    string(rec.Response),
		RespondedAt: formatTimePtr(rec.RespondedAt),
	}
}

func roundKm(km float64) float64 {
	return math.Round(km*1000) / 1000
}

func bloodTypeStrings(types []domain.BloodType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}

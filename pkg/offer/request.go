// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package offer

// Request is the caller context of one offer attempt plus its outcome callbacks.
// Callbacks are optional and may be invoked from any goroutine.
type Request struct {
	Event       string                 `json:"event,omitempty"`
	ReferenceID string                 `json:"referenceId,omitempty"`
	UserID      string                 `json:"userId,omitempty"`
	Email       string                 `json:"email,omitempty"`
	FirstName   string                 `json:"firstName,omitempty"`
	LastName    string                 `json:"lastName,omitempty"`
	Phone       string                 `json:"phone,omitempty"`
	Country     string                 `json:"country,omitempty"`
	Amount      *float64               `json:"amount,omitempty"`
	Quantity    *int                   `json:"quantity,omitempty"`
	PaymentType string                 `json:"paymentType,omitempty"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`

	OnNotifScheduled func(ok bool, reason string) `json:"-"`
	OnNotifSent      func()                       `json:"-"`
	OnPopupShown     func(ok bool, reason string) `json:"-"`
	OnPopupCanceled  func()                       `json:"-"`
	OnClicked        func()                       `json:"-"`
}

// Params flattens the request into the parameter map sent to the offer service.
func (r *Request) Params() map[string]interface{} {
	params := make(map[string]interface{}, len(r.Attributes)+12)
	for k, v := range r.Attributes {
		params[k] = v
	}
	set := func(key, value string) {
		if value != "" {
			params[key] = value
		}
	}
	set("event", r.Event)
	set("referenceId", r.ReferenceID)
	set("userId", r.UserID)
	set("email", r.Email)
	set("firstName", r.FirstName)
	set("lastName", r.LastName)
	set("phone", r.Phone)
	set("country", r.Country)
	set("paymentType", r.PaymentType)
	if r.Amount != nil {
		params["amount"] = *r.Amount
	}
	if r.Quantity != nil {
		params["quantity"] = *r.Quantity
	}
	return params
}

// CloneData copies the request without its callbacks.
func (r *Request) CloneData() *Request {
	out := &Request{
		Event:       r.Event,
		ReferenceID: r.ReferenceID,
		UserID:      r.UserID,
		Email:       r.Email,
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		Phone:       r.Phone,
		Country:     r.Country,
		Amount:      r.Amount,
		Quantity:    r.Quantity,
		PaymentType: r.PaymentType,
	}
	if r.Attributes != nil {
		out.Attributes = make(map[string]interface{}, len(r.Attributes))
		for k, v := range r.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}

func (r *Request) NotifScheduled(ok bool, reason string) {
	if r != nil && r.OnNotifScheduled != nil {
		r.OnNotifScheduled(ok, reason)
	}
}

func (r *Request) NotifSent() {
	if r != nil && r.OnNotifSent != nil {
		r.OnNotifSent()
	}
}

func (r *Request) PopupShown(ok bool, reason string) {
	if r != nil && r.OnPopupShown != nil {
		r.OnPopupShown(ok, reason)
	}
}

func (r *Request) PopupCanceled() {
	if r != nil && r.OnPopupCanceled != nil {
		r.OnPopupCanceled()
	}
}

func (r *Request) Clicked() {
	if r != nil && r.OnClicked != nil {
		r.OnClicked()
	}
}

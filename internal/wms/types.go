package wms

import (
	"bytes"
	"encoding/json"
)

// Text decodes any JSON scalar into its string form. null, objects and
// arrays become "". Numbers keep their literal spelling.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		*t = ""
		return nil
	}

	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
	case '{', '[', 'n':
		*t = ""
	default:
		*t = Text(b)
	}
	return nil
}

func (t Text) String() string {
	return string(t)
}

// List decodes a JSON array. Any other value, null included, becomes an
// empty list.
type List[T any] []T

func (l *List[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '[' {
		*l = nil
		return nil
	}

	var items []T
	if err := json.Unmarshal(b, &items); err != nil {
		return err
	}
	*l = items
	return nil
}

// decodeObject unmarshals b into v only when b is a JSON object, leaving v
// at its zero value otherwise.
func decodeObject(b []byte, v interface{}) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	return json.Unmarshal(b, v)
}

type Order struct {
	ReferenceNum Text            `json:"ReferenceNum"`
	Notes        Text            `json:"Notes"`
	ReadOnly     OrderReadOnly   `json:"ReadOnly"`
	ShipTo       ShipTo          `json:"ShipTo"`
	OrderItems   List[OrderItem] `json:"OrderItems"`
	Embedded     orderEmbedded   `json:"_embedded"`
}

type orderEmbedded struct {
	Items List[OrderItem] `json:"http://api.3plCentral.com/rels/orders/item"`
}

func (e *orderEmbedded) UnmarshalJSON(b []byte) error {
	type plain orderEmbedded
	var p plain
	if err := decodeObject(b, &p); err != nil {
		return err
	}
	*e = orderEmbedded(p)
	return nil
}

// Items returns the order lines, falling back to the HAL embedded list used
// by some API versions.
func (o *Order) Items() []OrderItem {
	if len(o.OrderItems) > 0 {
		return o.OrderItems
	}
	return o.Embedded.Items
}

type OrderReadOnly struct {
	OrderID      Text `json:"OrderId"`
	CreationDate Text `json:"CreationDate"`
}

func (r *OrderReadOnly) UnmarshalJSON(b []byte) error {
	type plain OrderReadOnly
	var p plain
	if err := decodeObject(b, &p); err != nil {
		return err
	}
	*r = OrderReadOnly(p)
	return nil
}

type ShipTo struct {
	CompanyName Text `json:"CompanyName"`
	Name        Text `json:"Name"`
	Address1    Text `json:"Address1"`
	City        Text `json:"City"`
	State       Text `json:"State"`
	Zip         Text `json:"Zip"`
	PhoneNumber Text `json:"PhoneNumber"`
}

func (s *ShipTo) UnmarshalJSON(b []byte) error {
	type plain ShipTo
	var p plain
	if err := decodeObject(b, &p); err != nil {
		return err
	}
	*s = ShipTo(p)
	return nil
}

type OrderItem struct {
	ItemIdentifier ItemIdentifier `json:"ItemIdentifier"`
	Qty            Text           `json:"Qty"`
	ReadOnly       ItemReadOnly   `json:"ReadOnly"`
}

func (i *OrderItem) UnmarshalJSON(b []byte) error {
	type plain OrderItem
	var p plain
	if err := decodeObject(b, &p); err != nil {
		return err
	}
	*i = OrderItem(p)
	return nil
}

type ItemIdentifier struct {
	Sku Text `json:"Sku"`
}

func (id *ItemIdentifier) UnmarshalJSON(b []byte) error {
	type plain ItemIdentifier
	var p plain
	if err := decodeObject(b, &p); err != nil {
		return err
	}
	*id = ItemIdentifier(p)
	return nil
}

type ItemReadOnly struct {
	Allocations List[Allocation] `json:"Allocations"`
}

func (r *ItemReadOnly) UnmarshalJSON(b []byte) error {
	type plain ItemReadOnly
	var p plain
	if err := decodeObject(b, &p); err != nil {
		return err
	}
	*r = ItemReadOnly(p)
	return nil
}

type Allocation struct {
	ReceiveItemID Text             `json:"ReceiveItemId"`
	Qty           Text             `json:"Qty"`
	Detail        AllocationDetail `json:"Detail"`
}

func (a *Allocation) UnmarshalJSON(b []byte) error {
	type plain Allocation
	var p plain
	if err := decodeObject(b, &p); err != nil {
		return err
	}
	*a = Allocation(p)
	return nil
}

type AllocationDetail struct {
	SerialNumber Text `json:"SerialNumber"`
}

func (d *AllocationDetail) UnmarshalJSON(b []byte) error {
	type plain AllocationDetail
	var p plain
	if err := decodeObject(b, &p); err != nil {
		return err
	}
	*d = AllocationDetail(p)
	return nil
}

// Serials lists the non-empty serial numbers allocated to the item, in
// allocation order.
func (i *OrderItem) Serials() []string {
	var serials []string
	for _, alloc := range i.ReadOnly.Allocations {
		if s := string(alloc.Detail.SerialNumber); s != "" {
			serials = append(serials, s)
		}
	}
	return serials
}

type orderCollection struct {
	TotalResults int                `json:"TotalResults"`
	ResourceList List[Order]        `json:"ResourceList"`
	Embedded     collectionEmbedded `json:"_embedded"`
}

type collectionEmbedded struct {
	Orders List[Order] `json:"http://api.3plCentral.com/rels/orders/order"`
}

func (e *collectionEmbedded) UnmarshalJSON(b []byte) error {
	type plain collectionEmbedded
	var p plain
	if err := decodeObject(b, &p); err != nil {
		return err
	}
	*e = collectionEmbedded(p)
	return nil
}

func (c *orderCollection) orders() []Order {
	if len(c.ResourceList) > 0 {
		return c.ResourceList
	}
	return c.Embedded.Orders
}

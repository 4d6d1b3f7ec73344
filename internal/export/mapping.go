package export

import (
	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/wms"
)

// Header is the Northline flat-file header. Every row has exactly this many
// columns.
var Header = []string{
	"AccountCode",
	"OrderDate",
	"RequiredDeliveryDate",
	"CustomerOrderNumber",
	"CustomerRefNumber",
	"Warehouse",
	"ReceiverName",
	"ReceiverStreetAddress1",
	"ReceiverSuburb",
	"ReceiverState",
	"ReceiverPostcode",
	"ReceiverContact",
	"ReceiverPhone",
	"ProductCode",
	"Qty",
	"Batch",
	"ExpiryDate",
	"SpecialInstructions",
}

const serialQuantity = "1"

func toRecord(o *wms.Order, accountCode, warehouse string) *OrderRecord {
	ref := o.ReferenceNum.String()
	rec := &OrderRecord{
		AccountCode:             accountCode,
		OrderDate:               o.ReadOnly.CreationDate.String(),
		CustomerOrderNumber:     ref,
		CustomerReferenceNumber: ref,
		Warehouse:               warehouse,
		Receiver: Receiver{
			Name:     o.ShipTo.CompanyName.String(),
			Street:   o.ShipTo.Address1.String(),
			Suburb:   o.ShipTo.City.String(),
			State:    o.ShipTo.State.String(),
			Postcode: o.ShipTo.Zip.String(),
			Contact:  o.ShipTo.Name.String(),
			Phone:    o.ShipTo.PhoneNumber.String(),
		},
		SpecialInstructions: o.Notes.String(),
	}

	items := o.Items()
	rec.Items = make([]LineItem, 0, len(items))
	for i := range items {
		serials := items[i].Serials()
		if serials == nil {
			serials = []string{}
		}
		rec.Items = append(rec.Items, LineItem{
			ProductCode: items[i].ItemIdentifier.Sku.String(),
			Quantity:    items[i].Qty.String(),
			Serials:     serials,
		})
	}
	return rec
}

// Rows flattens the order into CSV rows. An item with serials yields one row
// per serial with quantity 1; an item without serials yields one row with the
// requested quantity and an empty batch.
func (r *OrderRecord) Rows() [][]string {
	rows := make([][]string, 0, len(r.Items))
	for _, item := range r.Items {
		if len(item.Serials) == 0 {
			rows = append(rows, r.row(item.ProductCode, item.Quantity, ""))
			continue
		}
		for _, serial := range item.Serials {
			rows = append(rows, r.row(item.ProductCode, serialQuantity, serial))
		}
	}
	return rows
}

func (r *OrderRecord) row(productCode, qty, batch string) []string {
	return []string{
		r.AccountCode,
		r.OrderDate,
		"",
		r.CustomerOrderNumber,
		r.CustomerReferenceNumber,
		r.Warehouse,
		r.Receiver.Name,
		r.Receiver.Street,
		r.Receiver.Suburb,
		r.Receiver.State,
		r.Receiver.Postcode,
		r.Receiver.Contact,
		r.Receiver.Phone,
		productCode,
		qty,
		batch,
		"",
		r.SpecialInstructions,
	}
}

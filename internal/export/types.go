package export

// Receiver is the ship-to block repeated on every CSV row.
type Receiver struct {
	Name     string `json:"name"`
	Street   string `json:"street"`
	Suburb   string `json:"suburb"`
	State    string `json:"state"`
	Postcode string `json:"postcode"`
	Contact  string `json:"contact"`
	Phone    string `json:"phone"`
}

type LineItem struct {
	ProductCode string   `json:"product_code"`
	Quantity    string   `json:"quantity"`
	Serials     []string `json:"serials"`
}

type OrderRecord struct {
	AccountCode             string     `json:"account_code"`
	OrderDate               string     `json:"order_date"`
	CustomerOrderNumber     string     `json:"customer_order_number"`
	CustomerReferenceNumber string     `json:"customer_reference_number"`
	Warehouse               string     `json:"warehouse"`
	Receiver                Receiver   `json:"receiver"`
	SpecialInstructions     string     `json:"special_instructions"`
	Items                   []LineItem `json:"items"`
}

// Export is a rendered CSV file ready to be streamed to the caller.
type Export struct {
	Reference string
	Filename  string
	Rows      int
	Data      []byte
}

package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// NewOrderCmd создаёт группу команд для работы с заказами.
func NewOrderCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Place and inspect orders",
	}

	cmd.AddCommand(
		newOrderPlaceCmd(clientFn, outputFn),
		newOrderShowCmd(clientFn, outputFn),
		newOrderHistoryCmd(clientFn, outputFn),
		newOrderListCmd(clientFn, outputFn),
	)

	return cmd
}

// ParseItem разбирает позицию вида PRODUCT_ID:NAME:QTY:PRICE.
// Имя может содержать двоеточия.
func ParseItem(s string) (OrderItemRequest, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 4 {
		return OrderItemRequest{}, fmt.Errorf("invalid item %q, expected PRODUCT_ID:NAME:QTY:PRICE", s)
	}

	n := len(parts)
	qty, err := strconv.Atoi(parts[n-2])
	if err != nil || qty < 1 {
		return OrderItemRequest{}, fmt.Errorf("invalid quantity in item %q", s)
	}
	price, err := decimal.NewFromString(parts[n-1])
	if err != nil || !price.IsPositive() {
		return OrderItemRequest{}, fmt.Errorf("invalid price in item %q", s)
	}

	item := OrderItemRequest{
		ProductID:   parts[0],
		ProductName: strings.Join(parts[1:n-2], ":"),
		Quantity:    qty,
		Price:       price.StringFixed(2),
	}
	if item.ProductID == "" || item.ProductName == "" {
		return OrderItemRequest{}, fmt.Errorf("empty product id or name in item %q", s)
	}
	return item, nil
}

// OrderTotal считает сумму позиций.
func OrderTotal(items []OrderItemRequest) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(decimal.RequireFromString(it.Price).Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

func newOrderPlaceCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var email string
	var rawItems []string
	var total string
	var key string

	cmd := &cobra.Command{
		Use:   "place",
		Short: "Place a new order",
		Example: `  orderflow order place --email alice@example.com \
    --item SKU-1:Widget:2:19.99 --item SKU-2:Gadget:1:5.00 --idempotency-key cart-42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if len(rawItems) == 0 {
				return errors.New("at least one --item is required")
			}

			req := CreateOrderRequest{CustomerEmail: email}
			for _, raw := range rawItems {
				item, err := ParseItem(raw)
				if err != nil {
					return err
				}
				req.Items = append(req.Items, item)
			}

			if total != "" {
				t, err := decimal.NewFromString(total)
				if err != nil {
					return fmt.Errorf("invalid --total %q", total)
				}
				req.TotalAmount = t.StringFixed(2)
			} else {
				req.TotalAmount = OrderTotal(req.Items).StringFixed(2)
			}

			result, err := client.PlaceOrder(cmd.Context(), req, key)
			if err != nil {
				return err
			}

			out.Success(result.Message)
			out.Print(
				[]string{"ORDER_ID", "STATUS", "DUPLICATE"},
				[][]string{{result.OrderID, result.Status, strconv.FormatBool(result.Duplicate)}},
				result,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Customer email")
	cmd.Flags().StringArrayVar(&rawItems, "item", nil, "Item as PRODUCT_ID:NAME:QTY:PRICE (repeatable)")
	cmd.Flags().StringVar(&total, "total", "", "Order total (sum of items if not specified)")
	cmd.Flags().StringVar(&key, "idempotency-key", "", "Idempotency key; repeating it returns the same order")
	cmd.MarkFlagRequired("email")

	return cmd
}

func newOrderShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show order status, stages and items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			order, err := client.GetOrder(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if out.IsJSON() {
				out.JSON(order)
				return nil
			}

			out.Details([][2]string{
				{"Order", order.ID},
				{"Customer", order.CustomerEmail},
				{"Total", order.TotalAmount},
				{"Status", order.Status},
				{"Payment", order.PaymentStatus},
				{"Inventory", order.InventoryStatus},
				{"Email", order.EmailStatus},
				{"Placed", order.OrderDate},
			}, order)

			headers := []string{"PRODUCT_ID", "NAME", "QTY", "PRICE", "LINE_TOTAL"}
			rows := make([][]string, len(order.Items))
			for i, it := range order.Items {
				rows[i] = []string{it.ProductID, it.ProductName, strconv.Itoa(it.Quantity), it.Price, it.LineTotal}
			}
			out.Table(headers, rows)
			return nil
		},
	}
}

func newOrderHistoryCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "history ID",
		Short: "Show order status history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			history, err := client.OrderHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			headers := []string{"TIMESTAMP", "STATUS", "MESSAGE"}
			rows := make([][]string, len(history))
			for i, h := range history {
				rows[i] = []string{h.Timestamp, h.Status, h.Message}
			}

			out.Print(headers, rows, history)
			return nil
		},
	}
}

func newOrderListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders of a customer",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			orders, err := client.ListCustomerOrders(cmd.Context(), email)
			if err != nil {
				return err
			}

			headers := []string{"ORDER_ID", "STATUS", "TOTAL", "ITEMS", "DATE"}
			rows := make([][]string, len(orders))
			for i, o := range orders {
				rows[i] = []string{o.ID, o.Status, o.TotalAmount, strconv.Itoa(o.ItemCount), o.OrderDate}
			}

			out.Print(headers, rows, orders)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Customer email")
	cmd.MarkFlagRequired("email")

	return cmd
}

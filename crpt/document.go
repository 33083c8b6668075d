package crpt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ProductGroup é a categoria de produto do documento. Conjunto fechado.
type ProductGroup string

const (
	Clothes     ProductGroup = "clothes"
	Shoes       ProductGroup = "shoes"
	Tobacco     ProductGroup = "tobacco"
	Perfumery   ProductGroup = "perfumery"
	Tires       ProductGroup = "tires"
	Electronics ProductGroup = "electronics"
	Pharma      ProductGroup = "pharma"
	Milk        ProductGroup = "milk"
	Bicycle     ProductGroup = "bicycle"
	Wheelchairs ProductGroup = "wheelchairs"
)

var productGroups = []ProductGroup{
	Clothes, Shoes, Tobacco, Perfumery, Tires, Electronics, Pharma, Milk, Bicycle, Wheelchairs,
}

func ProductGroups() []ProductGroup {
	return append([]ProductGroup(nil), productGroups...)
}

func (g ProductGroup) Valid() bool {
	for _, v := range productGroups {
		if g == v {
			return true
		}
	}
	return false
}

func ParseProductGroup(s string) (ProductGroup, error) {
	g := ProductGroup(s)
	if !g.Valid() {
		return "", fmt.Errorf("unknown product group %q", s)
	}
	return g, nil
}

type DocumentFormat string

const (
	FormatManual DocumentFormat = "MANUAL"
	FormatXML    DocumentFormat = "XML"
	FormatCSV    DocumentFormat = "CSV"
)

func (f DocumentFormat) Valid() bool {
	switch f {
	case FormatManual, FormatXML, FormatCSV:
		return true
	}
	return false
}

// DocumentTypeIntroduceGoods é o tipo padrão: introdução de mercadorias em circulação.
const DocumentTypeIntroduceGoods = "LP_INTRODUCE_GOODS"

// Payload é o que o chamador entrega para Submit. O limiter nunca olha dentro dele.
type Payload struct {
	// Document vira JSON e depois base64. []byte e json.RawMessage são tratados
	// como o documento já serializado e vão direto para o base64: com Format
	// MANUAL (padrão) o conteúdo precisa ser JSON, nunca bytes arbitrários.
	Document  any
	Signature string
	Group     ProductGroup
	// Format e Type assumem MANUAL e LP_INTRODUCE_GOODS quando vazios.
	Format DocumentFormat
	Type   string
}

// requestBody é o corpo JSON enviado ao serviço.
type requestBody struct {
	ProductDocument string         `json:"product_document"`
	Signature       string         `json:"signature"`
	DocumentFormat  DocumentFormat `json:"document_format"`
	Type            string         `json:"type"`
	ProductGroup    ProductGroup   `json:"product_group"`
}

func newRequestBody(p Payload) ([]byte, error) {
	doc, err := encodeDocument(p.Document)
	if err != nil {
		return nil, err
	}

	body := requestBody{
		ProductDocument: doc,
		Signature:       p.Signature,
		DocumentFormat:  p.Format,
		Type:            p.Type,
		ProductGroup:    p.Group,
	}
	if body.DocumentFormat == "" {
		body.DocumentFormat = FormatManual
	}
	if body.Type == "" {
		body.Type = DocumentTypeIntroduceGoods
	}
	return json.Marshal(body)
}

// encodeDocument serializa o documento em JSON e codifica em base64 padrão.
func encodeDocument(doc any) (string, error) {
	var raw []byte
	switch v := doc.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(doc)
		if err != nil {
			return "", fmt.Errorf("encode document: %w", err)
		}
		raw = b
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

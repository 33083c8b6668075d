// Package crpt é o cliente do serviço de documentos que passa por um
// domain.Gate (normalmente infra.SlidingWindow) antes de cada POST.
//
// O cliente monta o corpo JSON (product_document em base64, signature,
// document_format, type, product_group), envia com Authorization e devolve a
// resposta crua. Política de retry, se houver, fica acima do Submit.
package crpt

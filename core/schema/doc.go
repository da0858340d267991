/*
Package schema defines the parsed form of a protocol-buffer schema file.

A Module is one .proto file reduced to an ordered list of Elements. The
element set is closed: Message, Enum, Service, Import, Package, Option,
Comment, Extension and Empty at the top level, plus Method inside a
Service. Every consumer switches over the concrete type and treats anything
else as a structural error.

# Parsing

Parse, ParseFile and ParseDir wrap github.com/emicklei/proto and translate
its visitee tree into Elements:

	syntax = "proto3";          -> Option{Name: "syntax"}
	package tinkoff.invest;     -> Package
	import "common.proto";      -> Import
	option go_package = "...";  -> Option
	// free comment             -> Comment
	message Ping {}             -> Message
	enum Side { ... }           -> Enum
	service Echo { ... }        -> Service (doc comment first, then Methods)
	extend Foo { ... }          -> Extension

Syntax errors are returned unchanged from the underlying parser, wrapped with
the file name.

# Type references

A TypeRef keeps the type name exactly as written in the schema: scalar
("string"), relative ("Pong"), nested ("Outer.Inner") or package-qualified
("google.protobuf.Timestamp"). Resolution happens later, against the symbol
table built from every module in the run.
*/
package schema

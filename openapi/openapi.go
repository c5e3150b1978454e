/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package openapi

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"sync"

	"github.com/tomoncle/crudkit/storage"
	"github.com/tomoncle/crudkit/types"

	"github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi31"
)

// Info is the top level document metadata.
type Info struct {
	Title       string
	Version     string
	Description string
}

// Record describes one operation of the document.
type Record struct {
	ID        string
	Method    string
	Path      string
	Summary   string
	Tags      []string
	Params    []interface{}
	Body      interface{}
	Response  interface{}
	Status    int
	Errors    []int
	MediaType string
}

// Resource groups the records of one REST resource.
type Resource struct {
	Name    string
	Records []Record
}

type idPath struct {
	ID string `path:"id" description:"Resource id"`
}

type pageQuery struct {
	Page   int    `query:"page" minimum:"1" description:"Page number, starting at 1"`
	Size   int    `query:"size" minimum:"1" maximum:"1000" description:"Page size"`
	Sort   string `query:"sort" description:"Comma separated columns, prefixed with - or suffixed with :desc for descending order"`
	Filter string `query:"filter" description:"Comma separated field:op:value conditions, op one of eq ne gt gte lt lte like in"`
}

type failure = types.OperationResult[any]

// Read describes the GET routes of a resource exposed as D.
func Read[D any](name string) Resource {
	base := "/api/" + name
	return Resource{Name: name, Records: []Record{
		{ID: name + ".list", Method: http.MethodGet, Path: base, Summary: "List " + name,
			Params: []interface{}{new(pageQuery)}, Response: new(types.OperationResult[*types.PagedData[D]]),
			Status: http.StatusOK, Errors: []int{http.StatusBadRequest}},
		{ID: name + ".export", Method: http.MethodGet, Path: base + "/export", Summary: "Export " + name + " as xlsx",
			Params: []interface{}{new(pageQuery)}, Response: new([]byte), Status: http.StatusOK,
			MediaType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", Errors: []int{http.StatusBadRequest}},
		{ID: name + ".get", Method: http.MethodGet, Path: base + "/{id}", Summary: "Get one " + name,
			Params: []interface{}{new(idPath)}, Response: new(types.OperationResult[*D]),
			Status: http.StatusOK, Errors: []int{http.StatusBadRequest, http.StatusNotFound}},
	}}
}

// Crud adds the write and bulk routes of a resource keyed by ID.
func Crud[D any, ID any](name string) Resource {
	r := Read[D](name)
	base, bulk := "/api/"+name, "/api/bulk/"+name
	r.Records = append(r.Records,
		Record{ID: name + ".create", Method: http.MethodPost, Path: base, Summary: "Create " + name,
			Body: new(D), Response: new(types.OperationResult[*D]), Status: http.StatusCreated,
			Errors: []int{http.StatusBadRequest, http.StatusConflict}},
		Record{ID: name + ".update", Method: http.MethodPut, Path: base + "/{id}", Summary: "Update " + name,
			Params: []interface{}{new(idPath)}, Body: new(D), Response: new(types.OperationResult[*D]),
			Status: http.StatusOK, Errors: []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict}},
		Record{ID: name + ".delete", Method: http.MethodDelete, Path: base + "/{id}", Summary: "Delete " + name,
			Params: []interface{}{new(idPath)}, Response: new(types.OperationResult[*D]),
			Status: http.StatusOK, Errors: []int{http.StatusNotFound}},
		Record{ID: name + ".createMany", Method: http.MethodPost, Path: bulk, Summary: "Create many " + name,
			Body: new([]D), Response: new(types.OperationResult[[]*D]), Status: http.StatusCreated,
			Errors: []int{http.StatusBadRequest, http.StatusConflict}},
		Record{ID: name + ".updateMany", Method: http.MethodPut, Path: bulk, Summary: "Update many " + name,
			Body: new([]D), Response: new(types.OperationResult[[]*D]), Status: http.StatusOK,
			Errors: []int{http.StatusBadRequest, http.StatusNotFound}},
		Record{ID: name + ".deleteMany", Method: http.MethodDelete, Path: bulk, Summary: "Delete many " + name,
			Body: new([]ID), Response: new(types.OperationResult[int64]), Status: http.StatusOK,
			Errors: []int{http.StatusBadRequest}},
	)
	return r
}

// Soft adds restore and hard delete to the crud routes.
func Soft[D any, ID any](name string) Resource {
	r := Crud[D, ID](name)
	base := "/api/" + name
	r.Records = append(r.Records,
		Record{ID: name + ".restore", Method: http.MethodPost, Path: base + "/{id}/restore", Summary: "Restore " + name,
			Params: []interface{}{new(idPath)}, Response: new(types.OperationResult[*D]),
			Status: http.StatusOK, Errors: []int{http.StatusNotFound}},
		Record{ID: name + ".hardDelete", Method: http.MethodDelete, Path: base + "/{id}/hard", Summary: "Permanently delete " + name,
			Params: []interface{}{new(idPath)}, Response: new(types.OperationResult[*D]),
			Status: http.StatusOK, Errors: []int{http.StatusNotFound}},
	)
	return r
}

type sourcePath struct {
	Source string `path:"source" description:"Configured storage source"`
}

type listQuery struct {
	Path  string `query:"path"`
	Token string `query:"token" description:"Continuation token of the previous page"`
	Size  int    `query:"size" minimum:"1" maximum:"1000"`
}

type pathQuery struct {
	Path string `query:"path" required:"true"`
}

type upload struct {
	Path string                `query:"path" description:"Target path; a trailing / appends the file name"`
	File *multipart.FileHeader `formData:"file" required:"true"`
}

// Files describes the file storage routes.
func Files() Resource {
	base := "/api/files/{source}"
	return Resource{Name: "files", Records: []Record{
		{ID: "files.list", Method: http.MethodGet, Path: base, Summary: "List a directory",
			Params: []interface{}{new(sourcePath), new(listQuery)}, Response: new(types.OperationResult[*storage.Listing]),
			Status: http.StatusOK, Errors: []int{http.StatusBadRequest, http.StatusNotFound}},
		{ID: "files.read", Method: http.MethodGet, Path: base + "/content", Summary: "Download a file",
			Params: []interface{}{new(sourcePath), new(pathQuery)}, Response: new([]byte), Status: http.StatusOK,
			MediaType: "application/octet-stream", Errors: []int{http.StatusBadRequest, http.StatusNotFound}},
		{ID: "files.create", Method: http.MethodPost, Path: base, Summary: "Upload a file",
			Params: []interface{}{new(sourcePath), new(upload)}, Response: new(types.OperationResult[*storage.FileInfo]),
			Status: http.StatusCreated, Errors: []int{http.StatusBadRequest, http.StatusNotFound}},
		{ID: "files.delete", Method: http.MethodDelete, Path: base, Summary: "Delete a file or a directory ending in /",
			Params: []interface{}{new(sourcePath), new(pathQuery)}, Response: new(types.OperationResult[bool]),
			Status: http.StatusOK, Errors: []int{http.StatusBadRequest, http.StatusNotFound}},
	}}
}

// Generate renders an OpenAPI 3.1 document for the given resources.
func Generate(info Info, resources ...Resource) ([]byte, error) {
	r := openapi31.NewReflector()
	r.Spec.Info.WithTitle(info.Title).WithVersion(info.Version)
	if info.Description != "" {
		r.Spec.Info.WithDescription(info.Description)
	}

	tags := make([]openapi31.Tag, 0, len(resources))
	for _, res := range resources {
		tags = append(tags, openapi31.Tag{Name: res.Name})
		for _, rec := range res.Records {
			if err := addRecord(r, res.Name, rec); err != nil {
				return nil, fmt.Errorf("operation %s: %w", rec.ID, err)
			}
		}
	}
	r.Spec.Tags = tags
	return r.Spec.MarshalJSON()
}

func addRecord(r *openapi31.Reflector, tag string, rec Record) error {
	oc, err := r.NewOperationContext(rec.Method, rec.Path)
	if err != nil {
		return err
	}
	oc.SetID(rec.ID)
	oc.SetSummary(rec.Summary)
	oc.SetTags(append([]string{tag}, rec.Tags...)...)

	for _, p := range rec.Params {
		oc.AddReqStructure(p)
	}
	if rec.Body != nil {
		oc.AddReqStructure(rec.Body)
	}
	if rec.MediaType != "" {
		oc.AddRespStructure(rec.Response, openapi.WithHTTPStatus(rec.Status), openapi.WithContentType(rec.MediaType))
	} else {
		oc.AddRespStructure(rec.Response, openapi.WithHTTPStatus(rec.Status))
	}
	for _, code := range rec.Errors {
		oc.AddRespStructure(new(failure), openapi.WithHTTPStatus(code))
	}
	oc.AddRespStructure(new(failure), openapi.WithHTTPStatus(http.StatusInternalServerError))
	return r.AddOperation(oc)
}

// Provider renders the document once and serves the cached bytes.
func Provider(info Info, resources ...Resource) func() ([]byte, error) {
	var (
		once sync.Once
		doc  []byte
		err  error
	)
	return func() ([]byte, error) {
		once.Do(func() { doc, err = Generate(info, resources...) })
		return doc, err
	}
}
